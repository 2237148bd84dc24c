package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/klauspost/compress/gzip"
)

// ExportVersion is bumped whenever the export layout changes.
const ExportVersion = "1"

// SessionExport is the root JSON structure
type SessionExport struct {
	Version  string        `json:"version"`
	Session  core.Session  `json:"session"`
	EndTime  time.Time     `json:"endTime"`
	LastTick core.Tick     `json:"lastTick"`
	Victor   core.Faction  `json:"victor,omitempty"`
	Ticks    []TickSummary `json:"ticks"`
	Zones    []ZoneJSON    `json:"zones"`
	Events   []core.Event  `json:"events"`
}

// TickSummary is one pipeline pass.
type TickSummary struct {
	Tick       core.Tick       `json:"tick"`
	Units      int             `json:"units"`
	Commands   int             `json:"commands"`
	Events     int             `json:"events"`
	DurationUS int64           `json:"durationUs"`
	Flow       core.FlowResult `json:"flow"`
}

// ZoneJSON is a zone with its change samples.
type ZoneJSON struct {
	ID      core.ZoneID  `json:"id"`
	Name    string       `json:"name"`
	Center  [2]float64   `json:"center"`
	Samples []ZoneSample `json:"samples"`
}

// exportJSON writes the session data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.session.MissionName)
	if name == "" {
		name = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if b.cfg.CompressOutput {
		gz := gzip.NewWriter(f)
		if err := writeJSON(gz, export); err != nil {
			return err
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	} else if err := writeJSON(f, export); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Version:  ExportVersion,
		Session:  *b.session,
		EndTime:  b.endTime,
		LastTick: b.lastTick,
		Victor:   b.victor,
		Ticks:    b.ticks,
		Zones:    make([]ZoneJSON, 0, len(b.order)),
		Events:   b.events,
	}
	if export.Ticks == nil {
		export.Ticks = []TickSummary{}
	}
	if export.Events == nil {
		export.Events = []core.Event{}
	}

	for _, id := range b.order {
		rec := b.zones[id]
		export.Zones = append(export.Zones, ZoneJSON{
			ID:      rec.ID,
			Name:    rec.Name,
			Center:  [2]float64{rec.Center.X, rec.Center.Y},
			Samples: rec.Samples,
		})
	}
	return export
}

func writeJSON(w io.Writer, data SessionExport) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// ReadExport loads an export written by this backend, gzipped or not.
func ReadExport(path string) (SessionExport, error) {
	var export SessionExport

	f, err := os.Open(path)
	if err != nil {
		return export, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}
