// Package handlers owns the running session and answers the calls a
// scripting host makes through the dispatcher.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/dispatcher"
	"github.com/fowlengine/missioncore/internal/engine"
	"github.com/fowlengine/missioncore/internal/geo"
	"github.com/fowlengine/missioncore/internal/influx"
	"github.com/fowlengine/missioncore/internal/journal"
	"github.com/fowlengine/missioncore/internal/logging"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/parser"
	"github.com/fowlengine/missioncore/internal/storage"
	"github.com/fowlengine/missioncore/internal/util"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
)

// uploadTimeout bounds the archive upload at the end of a session.
const uploadTimeout = 2 * time.Minute

// ErrNoMission is returned by calls that need a running session.
var ErrNoMission = errors.New("no mission running")

// Uploader sends an exported session file to an archive.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Parser     *parser.Parser
	Backend    storage.Backend
	Uploader   Uploader
	Influx     *influx.Manager
	Logger     *slog.Logger
	Engine     engine.Config
	Projector  *geo.Projector
	JournalDir string
	UploadTag  string
	Version    string
	BuildDate  string
}

// TickResponse is returned to the host after every tick.
type TickResponse struct {
	Tick    core.Tick            `json:"tick"`
	Results []core.CommandResult `json:"results,omitempty"`
	Events  []core.Event         `json:"events,omitempty"`
	Effects []hostapi.Effect     `json:"effects,omitempty"`
}

// SubmitResponse carries the ticket of an accepted command.
type SubmitResponse struct {
	Ticket core.Ticket `json:"ticket"`
}

// EndResponse summarises a finished session.
type EndResponse struct {
	Session  string       `json:"session"`
	LastTick core.Tick    `json:"lastTick"`
	Victor   core.Faction `json:"victor,omitempty"`
	Journal  string       `json:"journal,omitempty"`
	Export   string       `json:"export,omitempty"`
}

// Service provides handler methods for one session at a time.
type Service struct {
	deps Dependencies
	ctx  *mission.Context

	mu      sync.Mutex
	eng     *engine.Engine
	bridge  *hostapi.Bridge
	journal *journal.Writer

	statsMu  sync.RWMutex
	lastTick core.Tick
	lastDur  int64
	ticked   bool
}

// NewService creates a new handler service
func NewService(deps Dependencies, ctx *mission.Context) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger, deps.Version)
	}
	if ctx == nil {
		ctx = mission.NewContext()
	}
	return &Service{deps: deps, ctx: ctx}
}

// GetMissionContext returns the mission context
func (s *Service) GetMissionContext() *mission.Context {
	return s.ctx
}

// RegisterHandlers registers all host calls with the dispatcher.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(dispatcher.Event) (any, error) {
		return []string{s.deps.Version, s.deps.BuildDate}, nil
	})

	// Session lifecycle - sync, the host waits for the session ID
	d.Register(":MISSION:START:", s.handleMissionStart, dispatcher.Guarded(), dispatcher.Logged())
	d.Register(":MISSION:END:", s.handleMissionEnd, dispatcher.Guarded(), dispatcher.Logged())

	// Per-tick calls - sync, results and effects go back in the response
	d.Register(":TICK:", s.handleTick, dispatcher.Guarded(), dispatcher.Logged())
	d.Register(":COMMAND:", s.handleCommand, dispatcher.Guarded(), dispatcher.Logged())
	d.Register(":STATE:", s.handleState, dispatcher.Guarded())

	// Host metrics - buffered
	d.Register(":METRIC:", s.handleMetric, dispatcher.Buffered(1000), dispatcher.Logged())
}

func (s *Service) handleMissionStart(e dispatcher.Event) (any, error) {
	session, err := s.StartMission(e.Args)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) handleMissionEnd(dispatcher.Event) (any, error) {
	return s.EndMission()
}

func (s *Service) handleTick(e dispatcher.Event) (any, error) {
	return s.Tick(e.Args)
}

func (s *Service) handleCommand(e dispatcher.Event) (any, error) {
	return s.Submit(e.Args)
}

func (s *Service) handleState(e dispatcher.Event) (any, error) {
	section := ""
	if len(e.Args) > 0 {
		section = util.TrimQuotes(e.Args[0])
	}
	return s.State(section)
}

func (s *Service) handleMetric(e dispatcher.Event) (any, error) {
	return nil, s.Metric(e.Args)
}

// StartMission loads the layout, builds a fresh engine and opens the
// session in storage. A session still running is ended first.
func (s *Service) StartMission(data []string) (*core.Session, error) {
	ms, err := s.deps.Parser.ParseMissionStart(data)
	if err != nil {
		return nil, err
	}
	layout, err := mission.LoadLayout(ms.Layout)
	if err != nil {
		return nil, err
	}
	reg, err := layout.Build()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng != nil {
		s.deps.Logger.Warn("Mission started while another was running, ending it",
			"session", s.eng.Session().ID)
		if _, err := s.endLocked(); err != nil {
			s.deps.Logger.Error("Failed to end previous mission", "error", err)
		}
	}

	session := mission.NewSession(ms.MissionName, filepath.Base(ms.Layout), ms.Version)
	log := s.deps.Logger.With("session", session.ID)

	bridge := hostapi.NewBridge()
	opts := []engine.Option{engine.WithLogger(log), engine.WithProjector(s.deps.Projector)}

	var jw *journal.Writer
	if s.deps.JournalDir != "" {
		path := filepath.Join(s.deps.JournalDir, journalName(session))
		jw, err = journal.Create(path, *session)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		opts = append(opts, engine.WithJournal(jw))
	}

	eng, err := engine.New(*session, reg, bridge, s.deps.Engine, opts...)
	if err != nil {
		closeJournal(jw, log)
		return nil, err
	}

	if s.deps.Backend != nil {
		if err := s.deps.Backend.StartSession(session); err != nil {
			closeJournal(jw, log)
			return nil, fmt.Errorf("storage start session: %w", err)
		}
	}

	s.eng = eng
	s.bridge = bridge
	s.journal = jw
	s.deps.Parser.SetSession(eng.Units(), reg)
	s.ctx.SetMission(session, reg)

	s.statsMu.Lock()
	s.lastTick, s.lastDur, s.ticked = 0, 0, false
	s.statsMu.Unlock()

	log.Info("Mission started",
		"mission", session.MissionName,
		"layout", session.Layout,
		"zones", len(reg.Zones()),
		"routes", len(reg.Routes()))
	return session, nil
}

// journalName builds the journal file name of a session.
func journalName(session *core.Session) string {
	return fmt.Sprintf("%s_%s.jsonl.zst", session.StartTime.Format("20060102_150405"), session.ID)
}

func closeJournal(jw *journal.Writer, log *slog.Logger) {
	if jw == nil {
		return
	}
	if err := jw.Close(); err != nil {
		log.Warn("Failed to close journal", "path", jw.Path(), "error", err)
	}
}

// Tick feeds the host snapshot through the engine and records the outcome.
func (s *Service) Tick(data []string) (*TickResponse, error) {
	snap, err := s.deps.Parser.ParseSnapshot(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil, ErrNoMission
	}

	s.bridge.Push(snap)
	report, err := s.eng.Tick(context.Background())
	if err != nil {
		return nil, err
	}
	s.record(report)

	s.statsMu.Lock()
	s.lastTick, s.lastDur, s.ticked = report.Tick, report.DurationUS, true
	s.statsMu.Unlock()

	return &TickResponse{
		Tick:    report.Tick,
		Results: report.Results,
		Events:  report.Events,
		Effects: s.bridge.Drain(),
	}, nil
}

// record hands a tick to storage and metrics. Failures are logged; the
// simulation keeps running without its record.
func (s *Service) record(report *core.TickReport) {
	log := s.deps.Logger
	if b := s.deps.Backend; b != nil {
		if err := b.RecordTick(report); err != nil {
			log.Error("Failed to record tick", "tick", report.Tick, "error", err)
		}
		if err := b.RecordZoneStates(report.Tick, s.eng.QueryState().Zones); err != nil {
			log.Error("Failed to record zone states", "tick", report.Tick, "error", err)
		}
		if len(report.Events) > 0 {
			if err := b.RecordEvents(report.Events); err != nil {
				log.Error("Failed to record events", "tick", report.Tick, "error", err)
			}
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WritePoint(influx.BucketMission, influx.TickPoint(report, time.Now())); err != nil {
			log.Debug("Failed to write tick point", "error", err)
		}
	}
}

// Submit parses a host command and queues it for the next tick.
func (s *Service) Submit(data []string) (*SubmitResponse, error) {
	cmd, err := s.deps.Parser.ParseCommand(data)
	if errors.Is(err, parser.ErrNoSession) {
		return nil, ErrNoMission
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil, ErrNoMission
	}
	t, err := s.eng.Submit(cmd)
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{Ticket: t}, nil
}

// State answers a state query. section narrows the answer to one part of
// the snapshot; empty returns all of it.
func (s *Service) State(section string) (any, error) {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil {
		return nil, ErrNoMission
	}

	st := eng.QueryState()
	switch strings.ToLower(strings.TrimSpace(section)) {
	case "":
		return st, nil
	case "zones":
		return st.Zones, nil
	case "routes":
		return st.Routes, nil
	case "designations":
		return st.Designations, nil
	case "missions":
		return st.FireMissions, nil
	case "supply":
		return st.Supply, nil
	}
	return nil, fmt.Errorf("%w: unknown state section %q", parser.ErrInvalidArgs, section)
}

// Metric forwards a host metric to InfluxDB.
func (s *Service) Metric(data []string) error {
	if s.deps.Influx == nil {
		return nil
	}
	util.FixArgs(data)
	bucket, point, err := influx.ProcessMetricData(data)
	if err != nil {
		return err
	}
	return s.deps.Influx.WritePoint(bucket, point)
}

// EndMission closes the running session in storage and the journal, then
// uploads the export when the backend produced one.
func (s *Service) EndMission() (*EndResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil, ErrNoMission
	}
	return s.endLocked()
}

func (s *Service) endLocked() (*EndResponse, error) {
	session := s.eng.Session()
	log := s.deps.Logger.With("session", session.ID)

	lastTick := s.eng.LastTick()
	victor := s.eng.QueryState().Victor
	s.eng.Close()

	resp := &EndResponse{Session: session.ID, LastTick: lastTick, Victor: victor}
	var errs []error

	if s.journal != nil {
		resp.Journal = s.journal.Path()
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing journal: %w", err))
		}
	}

	if s.deps.Backend != nil {
		if err := s.deps.Backend.EndSession(lastTick, victor); err != nil {
			errs = append(errs, fmt.Errorf("storage end session: %w", err))
		} else if up, ok := s.deps.Backend.(storage.Uploadable); ok {
			resp.Export = up.GetExportedFilePath()
			s.upload(up, log)
		}
	}

	s.eng = nil
	s.bridge = nil
	s.journal = nil
	s.deps.Parser.ClearSession()
	s.ctx.SetMission(&core.Session{MissionName: "No mission loaded"}, mission.NewRegistry())

	log.Info("Mission ended", "lastTick", lastTick, "victor", victor.String())
	return resp, errors.Join(errs...)
}

func (s *Service) upload(up storage.Uploadable, log *slog.Logger) {
	path := up.GetExportedFilePath()
	if s.deps.Uploader == nil || path == "" {
		return
	}
	meta := up.GetExportMetadata()
	meta.Tag = s.deps.UploadTag
	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	if err := s.deps.Uploader.Upload(ctx, path, meta); err != nil {
		log.Error("Failed to upload session export", "path", path, "error", err)
		return
	}
	log.Info("Session export uploaded", "path", path)
}

// LastTickStats reports the most recent tick for the status monitor.
func (s *Service) LastTickStats() (string, core.Tick, int64, bool) {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.ctx.GetSession().ID, s.lastTick, s.lastDur, s.ticked
}

// LogContext reports the running session and its last tick for log records.
func (s *Service) LogContext() logging.MissionContext {
	session := s.ctx.GetSession()
	if session == nil || session.ID == "" {
		return logging.MissionContext{}
	}
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return logging.MissionContext{
		Session: session.ID,
		Mission: session.MissionName,
		Tick:    s.lastTick,
		Ticked:  s.ticked,
	}
}

// Close ends a session that is still running.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil
	}
	_, err := s.endLocked()
	return err
}
