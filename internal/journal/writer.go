// Package journal records everything a session consumed (accepted commands
// and snapshots) as zstd-compressed JSON lines, together with a running
// digest of the emitted events, so the session can be replayed and checked.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
	"github.com/klauspost/compress/zstd"
)

// EntryType tags one journal line.
type EntryType string

const (
	EntrySession  EntryType = "session"
	EntryCommand  EntryType = "command"
	EntrySnapshot EntryType = "snapshot"
	EntryEvents   EntryType = "events"
	EntryDigest   EntryType = "digest"
)

// Entry is one journal line. Only the fields relevant to Type are set.
type Entry struct {
	Type     EntryType         `json:"type"`
	Session  *core.Session     `json:"session,omitempty"`
	Ticket   core.Ticket       `json:"ticket,omitempty"`
	Kind     core.CommandKind  `json:"kind,omitempty"`
	Command  json.RawMessage   `json:"command,omitempty"`
	Snapshot *hostapi.Snapshot `json:"snapshot,omitempty"`
	Tick     core.Tick         `json:"tick,omitempty"`
	Events   int               `json:"events,omitempty"`
	Digest   string            `json:"digest,omitempty"`
}

// Digest folds events into a running xxhash of their JSON encoding.
type Digest struct {
	h     hash.Hash64
	count int
}

// NewDigest starts an empty digest.
func NewDigest() *Digest {
	return &Digest{h: xxhash.New()}
}

// Add folds events into the digest in order.
func (d *Digest) Add(events []core.Event) error {
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding %s event: %w", ev.Kind, err)
		}
		_, _ = d.h.Write(b)
		_, _ = d.h.Write([]byte{'\n'})
		d.count++
	}
	return nil
}

// Count is the number of events folded so far.
func (d *Digest) Count() int {
	return d.count
}

// String renders the digest as 16 hex digits.
func (d *Digest) String() string {
	return fmt.Sprintf("%016x", d.h.Sum64())
}

// Writer appends entries to a journal file. It satisfies engine.Journal.
type Writer struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	digest *Digest
	tick   core.Tick
}

// Create opens a new journal at path and writes the session header.
func Create(path string, session core.Session) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{
		path:   path,
		f:      f,
		enc:    enc,
		w:      bufio.NewWriterSize(enc, 128*1024),
		digest: NewDigest(),
	}
	if err := w.write(Entry{Type: EntrySession, Session: &session}); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// Path is the journal file location.
func (w *Writer) Path() string {
	return w.path
}

// RecordCommand journals an accepted command with its ticket.
func (w *Writer) RecordCommand(t core.Ticket, cmd core.Command) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", cmd.Kind(), err)
	}
	return w.write(Entry{Type: EntryCommand, Ticket: t, Kind: cmd.Kind(), Command: raw})
}

// RecordSnapshot journals a snapshot the pipeline accepted.
func (w *Writer) RecordSnapshot(s hostapi.Snapshot) error {
	w.mu.Lock()
	w.tick = s.Tick
	w.mu.Unlock()
	return w.write(Entry{Type: EntrySnapshot, Tick: s.Tick, Snapshot: &s})
}

// RecordEvents folds one tick's events into the digest and journals the
// running value.
func (w *Writer) RecordEvents(events []core.Event) error {
	w.mu.Lock()
	if err := w.digest.Add(events); err != nil {
		w.mu.Unlock()
		return err
	}
	e := Entry{Type: EntryEvents, Tick: w.tick, Events: len(events), Digest: w.digest.String()}
	w.mu.Unlock()
	return w.write(e)
}

// Close writes the final digest and flushes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.writeLocked(Entry{Type: EntryDigest, Events: w.digest.Count(), Digest: w.digest.String()})

	if ferr := w.w.Flush(); err == nil {
		err = ferr
	}
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.w = nil
	w.enc = nil
	w.f = nil
	return err
}

func (w *Writer) write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return os.ErrClosed
	}
	return w.writeLocked(e)
}

func (w *Writer) writeLocked(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}
