package redis

import (
	"testing"

	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/storage"
	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestKeys(t *testing.T) {
	assert.Equal(t, "mc:current", currentKey("mc"))
	assert.Equal(t, "mc:session:s1", sessionKey("mc", "s1"))
	assert.Equal(t, "mc:session:s1:tick", tickKey("mc", "s1"))
	assert.Equal(t, "mc:session:s1:zones", zonesKey("mc", "s1"))
	assert.Equal(t, "mc:session:s1:events", eventsKey("mc", "s1"))
}

func TestDefaultKeyPrefix(t *testing.T) {
	b := New(config.RedisConfig{}, nil)
	assert.Equal(t, "missioncore", b.cfg.KeyPrefix)
	assert.NoError(t, b.Close())
}

func TestInitRejectsBadURL(t *testing.T) {
	b := New(config.RedisConfig{URL: "http://not-redis"}, nil)
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestInitFailsWhenUnreachable(t *testing.T) {
	b := New(config.RedisConfig{URL: "redis://127.0.0.1:1/0"}, nil)
	defer b.Close()
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestRecordingNeedsSession(t *testing.T) {
	b := New(config.RedisConfig{}, nil)
	assert.Error(t, b.RecordTick(&core.TickReport{Tick: 1}))
	assert.Error(t, b.RecordZoneStates(1, []core.ZoneView{{ID: 1}}))
	assert.Error(t, b.RecordEvents([]core.Event{{Kind: core.EventVictory}}))

	// empty batches never reach the server
	assert.NoError(t, b.RecordZoneStates(1, nil))
	assert.NoError(t, b.RecordEvents(nil))
	assert.NoError(t, b.EndSession(0, core.FactionNeutral))
}
