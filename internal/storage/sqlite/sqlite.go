// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/database"
	gormstorage "github.com/fowlengine/missioncore/internal/storage/gorm"
	"github.com/fowlengine/missioncore/pkg/core"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpDir      string // one <session>.db per session
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db  *gorm.DB
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	dumpPath string
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: logger}),
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpDir != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, flushes, writes a last dump and closes the
// embedded GORM backend.
func (b *Backend) Close() error {
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	b.wg.Wait()
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.Dump()
}

// StartSession records the session and names its dump file.
func (b *Backend) StartSession(session *core.Session) error {
	if err := b.Backend.StartSession(session); err != nil {
		return err
	}
	if b.cfg.DumpDir != "" {
		b.mu.Lock()
		b.dumpPath = filepath.Join(b.cfg.DumpDir, fmt.Sprintf("%s_%s.db",
			session.ID, session.StartTime.Format("20060102_150405")))
		b.mu.Unlock()
	}
	return nil
}

// EndSession closes the session row and dumps the final state.
func (b *Backend) EndSession(lastTick core.Tick, victor core.Faction) error {
	if err := b.Backend.EndSession(lastTick, victor); err != nil {
		return err
	}
	return b.Dump()
}

// DumpPath returns where the current session is dumped, empty if disabled.
func (b *Backend) DumpPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dumpPath
}

// Dump writes the in-memory database to DumpPath.
func (b *Backend) Dump() error {
	path := b.DumpPath()
	if path == "" {
		return nil
	}
	b.Flush()
	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, path); err != nil {
		return err
	}
	b.log.Debug("dumped sqlite to disk", "path", path, "duration", time.Since(start))
	return nil
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Dump(); err != nil {
				b.log.Error("error dumping sqlite to disk", "error", err)
			}
		}
	}
}
