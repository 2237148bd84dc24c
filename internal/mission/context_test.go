package mission

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, "No mission loaded", ctx.GetSession().MissionName)
	assert.NotNil(t, ctx.GetRegistry())
	assert.False(t, ctx.Loaded())
}

func TestContext_SetMission(t *testing.T) {
	ctx := NewContext()
	session := NewSession("Op Fowl", "caucasus.yaml", "1.0.0")
	reg := NewRegistry()

	ctx.SetMission(session, reg)

	assert.True(t, ctx.Loaded())
	assert.Same(t, session, ctx.GetSession())
	assert.Same(t, reg, ctx.GetRegistry())
}

func TestNewSession(t *testing.T) {
	s := NewSession("Op Fowl", "caucasus.yaml", "1.0.0")

	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Op Fowl", s.MissionName)
	assert.Equal(t, "caucasus.yaml", s.Layout)
	assert.False(t, s.StartTime.IsZero())

	assert.NotEqual(t, s.ID, NewSession("Op Fowl", "", "").ID)
}
