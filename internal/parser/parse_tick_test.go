package parser

import (
	"testing"

	"github.com/fowlengine/missioncore/pkg/core"
	"github.com/fowlengine/missioncore/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshot(t *testing.T) {
	p := newTestParser()

	s, err := p.ParseSnapshot([]string{
		"12.00",
		`[["eyes","blue","jtac",[5000,20,3],1],["gun","west","artillery",[0,0],0.5,false,12000],["spotter","blue","infantry",[1,2],1,true]]`,
		`[["Alpha","circle",[0,0],500],["Bravo","polygon",[[0,0],[10,0],[10,10]]]]`,
		`["Alpha-Bravo"]`,
	})
	require.NoError(t, err)

	assert.Equal(t, core.Tick(12), s.Tick)
	require.Len(t, s.Units, 3)
	assert.Equal(t, hostapi.Unit{Name: "eyes", Faction: "blue", Role: "jtac", Position: core.Position{X: 5000, Y: 20, Alt: 3}, Strength: 1}, s.Units[0])
	assert.Equal(t, 12000.0, s.Units[1].Range)
	assert.Equal(t, 0.5, s.Units[1].Strength)
	assert.True(t, s.Units[2].CanDesignate)

	require.Len(t, s.ZoneGeometry, 2)
	require.NotNil(t, s.ZoneGeometry[0].Circle)
	assert.Equal(t, 500.0, s.ZoneGeometry[0].Circle.Radius)
	assert.Len(t, s.ZoneGeometry[1].Polygon, 3)
	assert.Equal(t, []string{"Alpha-Bravo"}, s.BlockedRoutes)
}

func TestParseSnapshotEscapedQuotes(t *testing.T) {
	p := newTestParser()
	s, err := p.ParseSnapshot([]string{`"3"`, `"[[""eyes"",""blue"",""jtac"",[1,2],1]]"`})
	require.NoError(t, err)
	require.Len(t, s.Units, 1)
	assert.Equal(t, "eyes", s.Units[0].Name)
}

func TestParseSnapshotSkipsMalformedEntries(t *testing.T) {
	p := newTestParser()
	s, err := p.ParseSnapshot([]string{
		"1",
		`[["ok","blue","infantry",[0,0],1],["short","blue"],[42,"blue","infantry",[0,0],1],["bad","blue","infantry",["x",0],1]]`,
		`[["Alpha","triangle",[0,0]],["Bravo","circle",[0,0],"big"],["Charlie","circle",[0,0],10]]`,
	})
	require.NoError(t, err)
	require.Len(t, s.Units, 1)
	assert.Equal(t, "ok", s.Units[0].Name)
	require.Len(t, s.ZoneGeometry, 1)
	assert.Equal(t, "Charlie", s.ZoneGeometry[0].Zone)
}

func TestParseSnapshotErrors(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name  string
		input []string
	}{
		{"missing units", []string{"1"}},
		{"fractional tick", []string{"1.5", "[]"}},
		{"negative tick", []string{"-1", "[]"}},
		{"units not json", []string{"1", "units"}},
		{"geometry not json", []string{"1", "[]", "{"}},
		{"blocked not json", []string{"1", "[]", "", "Alpha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseSnapshot(tt.input)
			assert.ErrorIs(t, err, ErrInvalidArgs)
		})
	}
}
