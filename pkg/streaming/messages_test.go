package streaming

import (
	"encoding/json"
	"testing"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelope(t *testing.T) {
	data, err := Marshal(TypeEndSession, EndSessionPayload{Session: "s", LastTick: 12, Victor: core.FactionRed})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeEndSession, env.Type)
	assert.JSONEq(t, `{"session":"s","lastTick":12,"victor":"red"}`, string(env.Payload))
}

func TestMarshalRejectsUnencodable(t *testing.T) {
	_, err := Marshal(TypeTick, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}
