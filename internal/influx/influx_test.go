package influx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessMetricData(t *testing.T) {
	bucket, point, err := ProcessMetricData([]string{
		BucketHost, "server_fps",
		"tag::server::alpha",
		"field::float::fps::47.5",
		"field::int::players::12",
		"field::string::map::caucasus",
		"ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, BucketHost, bucket)
	assert.Equal(t, "server_fps", point.Name())

	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	assert.Contains(t, line, "server_fps,server=alpha")
	assert.Contains(t, line, "fps=47.5")
	assert.Contains(t, line, "players=12i")
	assert.Contains(t, line, `map="caucasus"`)
}

func TestProcessMetricDataErrors(t *testing.T) {
	_, _, err := ProcessMetricData([]string{"only-bucket"})
	assert.Error(t, err)

	_, _, err = ProcessMetricData([]string{BucketHost, "m", "field::int::n::many"})
	assert.ErrorContains(t, err, "to int")

	_, _, err = ProcessMetricData([]string{BucketHost, "m", "field::float::n::x"})
	assert.ErrorContains(t, err, "to float")
}

func TestTickPoint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := TickPoint(&core.TickReport{
		Session: "s1",
		Tick:    9,
		Units:   4,
		Results: []core.CommandResult{
			{Ticket: 1},
			{Ticket: 2, Err: &core.CommandError{Kind: core.KindValidation, Command: core.CmdAdjustFire, Reason: "bad"}},
		},
		Ownership:  []core.OwnershipDelta{{Zone: 1, Flipped: true}, {Zone: 2}},
		Flow:       core.FlowResult{Produced: 2.5, Interdicted: []core.RouteID{3}},
		DurationUS: 150,
	}, at)

	assert.Equal(t, "tick", p.Name())
	assert.Equal(t, at, p.Time())
	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.Contains(t, line, "tick,session=s1")
	assert.Contains(t, line, "rejected=1i")
	assert.Contains(t, line, "flips=1i")
	assert.Contains(t, line, "interdicted=1i")
	assert.Contains(t, line, "produced=2.5")
}

func TestConnectDisabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "influx.lp.gz"))
	assert.ErrorIs(t, m.Connect(config.InfluxConfig{}), ErrDisabled)
	assert.False(t, m.IsValid)
}

func TestWritePointWithoutBackend(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.WritePoint(BucketEngine, influxdb2_write.NewPointWithMeasurement("tick"))
	assert.Error(t, err)
}

func TestWritePointFallsBackToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx.lp.gz")
	m := NewManager(zerolog.Nop(), path)
	require.NoError(t, m.openBackup())

	point := TickPoint(&core.TickReport{Session: "s1", Tick: 1}, time.Unix(0, 42))
	require.NoError(t, m.WritePoint(BucketEngine, point))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "tick,session=s1 "))
	assert.True(t, strings.HasSuffix(lines[0], " 42"))
}
