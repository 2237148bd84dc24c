// Package monitor periodically samples engine and storage performance into
// a status file, the database and InfluxDB.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/influx"
	"github.com/fowlengine/missioncore/internal/model"
	"github.com/fowlengine/missioncore/pkg/core"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"gorm.io/gorm"
)

const defaultInterval = 10 * time.Second

// TickStats reports the most recent tick of the running session.
type TickStats interface {
	LastTickStats() (session string, tick core.Tick, durationUS int64, ok bool)
}

// QueueReporter is implemented by backends with write queues.
type QueueReporter interface {
	QueueLengths() model.WriteQueueLengths
}

// DBWriteDurationProvider is implemented by backends that expose their last
// DB write duration.
type DBWriteDurationProvider interface {
	GetLastDBWriteDuration() time.Duration
}

// SessionRowProvider is implemented by backends that keep a session row.
type SessionRowProvider interface {
	SessionRowID() uint
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB        *gorm.DB
	Logger    *slog.Logger
	Engine    TickStats
	Backend   any
	Influx    *influx.Manager
	StatusDir string
	Interval  time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus samples the current performance. ok is false while no
// session has ticked.
func (s *Service) GetProgramStatus(writeQueues, lastWrite bool) (output []string, perf model.EnginePerformance, ok bool) {
	if s.deps.Engine == nil {
		return nil, perf, false
	}
	session, tick, durationUS, ok := s.deps.Engine.LastTickStats()
	if !ok {
		return nil, perf, false
	}

	perf = model.EnginePerformance{
		Time:               time.Now(),
		LastTick:           uint64(tick),
		LastTickDurationUS: durationUS,
	}
	if q, isQ := s.deps.Backend.(QueueReporter); isQ {
		perf.WriteQueueLengths = q.QueueLengths()
	}
	if p, isP := s.deps.Backend.(DBWriteDurationProvider); isP {
		perf.LastWriteDurationMs = float32(p.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	if r, isR := s.deps.Backend.(SessionRowProvider); isR {
		perf.SessionID = r.SessionRowID()
	}

	output = append(output, fmt.Sprintf("session %s tick %d took %dus", session, tick, durationUS))
	if writeQueues {
		raw, err := json.MarshalIndent(perf.WriteQueueLengths, "", "  ")
		if err != nil {
			raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(raw))
	}
	if lastWrite {
		output = append(output, fmt.Sprintf("last write %.3fms", perf.LastWriteDurationMs))
	}
	return output, perf, true
}

// ValidateHypertables turns the given tables into TimescaleDB hypertables
// segmented by the listed columns. Only meaningful on Postgres with the
// timescaledb extension.
func (s *Service) ValidateHypertables(tables map[string][]string) error {
	log := s.deps.Logger
	for table, segmentBy := range tables {
		var count int64
		s.deps.DB.Raw(`SELECT count(*) FROM timescaledb_information.hypertables WHERE hypertable_name = ?`, table).Scan(&count)
		if count > 0 {
			log.Info("Hypertable already configured", "table", table)
			continue
		}

		err := s.deps.DB.Exec(fmt.Sprintf(
			`SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true, migrate_data => true);`,
			table)).Error
		if err != nil {
			return fmt.Errorf("create hypertable %s: %w", table, err)
		}

		err = s.deps.DB.Exec(fmt.Sprintf(
			`ALTER TABLE %s SET (timescaledb.compress, timescaledb.compress_segmentby = '%s');`,
			table, strings.Join(segmentBy, ","))).Error
		if err != nil {
			return fmt.Errorf("enable compression for %s: %w", table, err)
		}

		err = s.deps.DB.Exec(fmt.Sprintf(
			`SELECT add_compression_policy('%s', compress_after => interval '14 day');`, table)).Error
		if err != nil {
			return fmt.Errorf("set compress_after for %s: %w", table, err)
		}
		log.Info("Created hypertable", "table", table)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		f, err := os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer close(s.done)
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sample(statusFile)
			}
		}
	}()
	return nil
}

func (s *Service) sample(statusFile *os.File) {
	lines, perf, ok := s.GetProgramStatus(true, true)
	if !ok {
		return
	}
	log := s.deps.Logger

	if statusFile != nil {
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		_, _ = statusFile.WriteString(strings.Join(lines, "\n") + "\n")
	}

	if s.deps.DB != nil && perf.SessionID != 0 {
		if err := s.deps.DB.Create(&perf).Error; err != nil {
			log.Error("Error writing performance row", "error", err)
		}
	}

	if s.deps.Influx != nil {
		point := influxdb2.NewPoint("engine_status",
			nil,
			map[string]any{
				"last_tick":        int64(perf.LastTick),
				"tick_duration_us": perf.LastTickDurationUS,
				"queue_ticks":      int(perf.WriteQueueLengths.Ticks),
				"queue_zones":      int(perf.WriteQueueLengths.ZoneStates),
				"queue_events":     int(perf.WriteQueueLengths.Events),
				"last_write_ms":    float64(perf.LastWriteDurationMs),
			},
			perf.Time)
		if err := s.deps.Influx.WritePoint(influx.BucketEngine, point); err != nil {
			log.Debug("Error writing performance point", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
