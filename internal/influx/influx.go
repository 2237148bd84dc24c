// Package influx writes engine and host performance points to InfluxDB,
// falling back to a gzipped line-protocol file when the server is down.
package influx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// Bucket names.
const (
	BucketMission = "mission_data"
	BucketEngine  = "engine_performance"
	BucketHost    = "host_performance"
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{BucketMission, BucketEngine, BucketHost}

// ErrDisabled is returned by Connect when influx output is switched off.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter io.WriteCloser
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	mu         sync.Mutex
	backupFile *os.File
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

// Connect establishes a connection to InfluxDB. When the server cannot be
// reached, points go to the backup file instead.
func (m *Manager) Connect(cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	running, err := m.Client.Ping(ctx)
	m.IsValid = err == nil && running

	if !m.IsValid {
		m.Logger.Warn().Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBuckets(cfg.Org); err != nil {
		return err
	}
	m.CreateWriters(cfg.Org)
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(orgName string) error {
	ctx := context.Background()

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	for _, bucket := range m.BucketNames {
		if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters(orgName string) {
	for _, bucket := range m.BucketNames {
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, m.Writers[bucket].Errors())
	}
	m.Logger.Debug().Int("buckets", len(m.BucketNames)).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := io.WriteString(m.BackupWriter, line+"\n"); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// TickPoint turns a tick report into an engine performance point.
func TickPoint(r *core.TickReport, at time.Time) *influxdb2_write.Point {
	rejected := 0
	for _, res := range r.Results {
		if !res.OK() {
			rejected++
		}
	}
	flips := 0
	for _, d := range r.Ownership {
		if d.Flipped {
			flips++
		}
	}
	return influxdb2.NewPoint("tick",
		map[string]string{"session": r.Session},
		map[string]any{
			"tick":        int64(r.Tick),
			"units":       r.Units,
			"skipped":     r.Skipped,
			"commands":    len(r.Results),
			"rejected":    rejected,
			"flips":       flips,
			"events":      len(r.Events),
			"duration_us": r.DurationUS,
			"produced":    r.Flow.Produced,
			"delivered":   r.Flow.Delivered,
			"consumed":    r.Flow.Consumed,
			"unmet":       r.Flow.Unmet,
			"interdicted": len(r.Flow.Interdicted),
		},
		at)
}

// ProcessMetricData parses a host metric call into a bucket and point.
//
//	0 = bucket name
//	1 = measurement name
//	n with "tag::" prefix = tag::name::value
//	n with "field::" prefix = field::type::name::value (string, int, float)
func ProcessMetricData(data []string) (bucket string, point *influxdb2_write.Point, err error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("metric needs a bucket and a measurement, got %d arguments", len(data))
	}

	bucket = data[0]
	point = influxdb2_write.NewPointWithMeasurement(data[1])

	for _, arg := range data[2:] {
		parts := strings.Split(arg, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			name, value := parts[2], parts[3]
			switch parts[1] {
			case "string":
				point.AddField(name, value)
			case "int":
				v, err := strconv.Atoi(value)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", value, err)
				}
				point.AddField(name, v)
			case "float":
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", value, err)
				}
				point.AddField(name, v)
			}
		}
	}
	return bucket, point, nil
}
