// Package postgres implements the storage.Backend interface on PostgreSQL
// through the shared GORM writer.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/database"
	gormstorage "github.com/fowlengine/missioncore/internal/storage/gorm"
	"gorm.io/gorm"
)

// Backend wraps the GORM backend with a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	cfg  config.DBConfig
	open func(config.DBConfig) (*gorm.DB, error)
	log  *slog.Logger
}

// New creates a Postgres backend. The connection is opened by Init.
func New(cfg config.DBConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: logger}),
		cfg:     cfg,
		open:    database.OpenPostgres,
		log:     logger,
	}
}

// Init connects, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if b.DB() == nil {
		db, err := b.open(b.cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.SetDB(db)
		b.log.Info("connected to postgres", "host", b.cfg.Host, "database", b.cfg.Database)
	}
	return b.Backend.Init()
}
