package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/klauspost/compress/zstd"
)

// ErrNoSession is returned when a journal does not start with a session
// header.
var ErrNoSession = errors.New("journal has no session header")

// Reader reads a journal written by Writer.
type Reader struct {
	f       *os.File
	dec     *zstd.Decoder
	scanner *bufio.Scanner
	session core.Session
	line    int
}

// Open opens a journal and reads its session header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	r := &Reader{f: f, dec: dec, scanner: sc}
	first, err := r.Next()
	if err != nil {
		_ = r.Close()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	if first.Type != EntrySession || first.Session == nil {
		_ = r.Close()
		return nil, ErrNoSession
	}
	r.session = *first.Session
	return r, nil
}

// Session is the header the journal was created with.
func (r *Reader) Session() core.Session {
	return r.session
}

// Next returns the next entry, or io.EOF after the last one.
func (r *Reader) Next() (Entry, error) {
	for r.scanner.Scan() {
		r.line++
		b := r.scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return Entry{}, fmt.Errorf("journal line %d: %w", r.line, err)
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Entry{}, fmt.Errorf("reading journal: %w", err)
	}
	return Entry{}, io.EOF
}

// Close releases the file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
