// Package api talks to the web frontend that archives finished sessions.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/sessions/add"

	// errorBodyLimit caps how much of a failed response ends up in the error.
	errorBodyLimit = 512
)

// StatusError is returned when the archive answers with a non-200 status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: archive returned status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: archive returned status %d: %s", e.Op, e.Code, e.Body)
}

// Client posts session exports to the archive frontend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with its 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the archive at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Healthcheck reports whether the archive answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	return c.do(req, "healthcheck")
}

// Upload streams an exported session file to the archive along with the
// session summary as form fields.
func (c *Client) Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("upload: open export: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(form, file, filepath.Base(filePath), meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, "upload "+filepath.Base(filePath))
}

// uploadFields lists the summary fields in the order they are sent.
func (c *Client) uploadFields(name string, meta core.UploadMetadata) [][2]string {
	return [][2]string{
		{"secret", c.apiKey},
		{"filename", name},
		{"sessionId", meta.SessionID},
		{"missionName", meta.MissionName},
		{"layout", meta.Layout},
		{"ticks", strconv.FormatUint(uint64(meta.Ticks), 10)},
		{"sessionDuration", strconv.FormatFloat(meta.SessionDuration, 'f', 3, 64)},
		{"victor", meta.Victor.String()},
		{"tag", meta.Tag},
	}
}

func (c *Client) writeForm(form *multipart.Writer, file io.Reader, name string, meta core.UploadMetadata) error {
	for _, f := range c.uploadFields(name, meta) {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy export: %w", err)
	}
	return form.Close()
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
