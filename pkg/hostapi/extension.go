package hostapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fowlengine/missioncore/internal/dispatcher"
)

// Extension is the string-in/string-out entry point a scripting host calls.
// Every call is routed through the dispatcher and answered with a JSON array
// of the form ["ok", result] or ["error", reason].
type Extension struct {
	dispatcher *dispatcher.Dispatcher
	version    string
}

// NewExtension creates an extension entry point backed by d.
func NewExtension(d *dispatcher.Dispatcher, version string) *Extension {
	if version == "" {
		version = "No version set"
	}
	return &Extension{dispatcher: d, version: version}
}

// Version is returned when the host first loads the extension.
func (x *Extension) Version() string {
	return x.version
}

// Call handles one host call. Commands may carry inline data after a pipe,
// e.g. ":STATE:|zones"; the part before the pipe selects the handler when the
// full string is not registered.
func (x *Extension) Call(command string, args []string) string {
	if command == ":TIMESTAMP:" {
		return formatDispatchResponse(command, getTimestamp(), nil)
	}

	if x.dispatcher == nil {
		return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered"))
	}

	dispatchCommand := command
	if !x.dispatcher.HasHandler(command) {
		commandSubstr, rest, found := strings.Cut(command, "|")
		if !found || !x.dispatcher.HasHandler(commandSubstr) {
			return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered"))
		}
		dispatchCommand = commandSubstr
		args = append([]string{rest}, args...)
	}

	result, err := x.dispatcher.Dispatch(dispatcher.Event{
		Command:   dispatchCommand,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(dispatchCommand, result, err)
}

// ErrorResponse is the host answer for a failed call.
func ErrorResponse(reason string) string {
	return `["error", ` + quote(reason) + `]`
}

// StringResponse is the host answer for a call returning a plain string.
func StringResponse(s string) string {
	return `["ok", ` + quote(s) + `]`
}

// quote encodes s as a JSON string literal.
func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// formatDispatchResponse formats a dispatcher result for the host.
// Strings are passed through quoted, anything else is JSON encoded.
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		return ErrorResponse(err.Error())
	}
	switch v := result.(type) {
	case nil:
		return `["ok"]`
	case string:
		return StringResponse(v)
	case json.RawMessage:
		return fmt.Sprintf(`["ok", %s]`, v)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return ErrorResponse(command + ": " + err.Error())
	}
	return fmt.Sprintf(`["ok", %s]`, data)
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
