package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeZone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple zone", input: "SE1", want: "SE1"},
		{name: "lowercase is upper-cased", input: "se3", want: "SE3"},
		{name: "surrounding whitespace", input: "  dk1 ", want: "DK1"},
		{name: "underscore and hyphen", input: "NO_2-x", want: "NO_2-X"},
		{name: "empty", input: "", wantErr: true},
		{name: "single char", input: "S", wantErr: true},
		{name: "too long", input: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456", wantErr: true},
		{name: "inner space", input: "SE 1", wantErr: true},
		{name: "punctuation", input: "SE1;DROP", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeZone(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidZone)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithZone_ResetsTimestampOnZoneChange(t *testing.T) {
	zoneA := "SE1"
	zoneB := "SE2"
	ts := "2024-05-03T10:00:00Z"

	state := NewWatchState().WithZone(&zoneA, nil).WithTimestamp(ts)
	require.Equal(t, &ts, state.LastTimestamp)

	switched := state.WithZone(&zoneB, nil)
	assert.Nil(t, switched.LastTimestamp, "switching zones without a supplied timestamp must reset it")
	assert.Equal(t, &zoneB, switched.Zone)
}

func TestWithZone_KeepsTimestampForSameZone(t *testing.T) {
	zone := "SE3"
	ts := "2024-05-03T10:00:00Z"

	state := NewWatchState().WithZone(&zone, nil).WithTimestamp(ts)
	same := state.WithZone(&zone, nil)

	assert.Equal(t, &ts, same.LastTimestamp)
}

func TestWithZone_SuppliedTimestampSurvivesSwitch(t *testing.T) {
	zoneA := "SE1"
	zoneB := "SE2"
	supplied := "2024-05-03T11:00:00Z"

	state := NewWatchState().WithZone(&zoneA, nil).WithTimestamp("2024-05-03T10:00:00Z")
	switched := state.WithZone(&zoneB, &supplied)

	assert.Equal(t, &supplied, switched.LastTimestamp)
}

func TestWithZone_NilZoneClearsTimestamp(t *testing.T) {
	zone := "SE1"
	state := NewWatchState().WithZone(&zone, nil).WithTimestamp("2024-05-03T10:00:00Z")

	idle := state.WithZone(nil, nil)
	assert.Nil(t, idle.Zone)
	assert.Nil(t, idle.LastTimestamp)
	assert.False(t, idle.Watching())
}

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		previous string
		want     string
	}{
		{name: "empty means same origin", raw: "", want: ""},
		{name: "scheme defaults to https", raw: "tunnel.example.dev", want: "https://tunnel.example.dev"},
		{name: "trailing slash dropped", raw: "https://spot.utilitarian.io/", want: "https://spot.utilitarian.io"},
		{name: "http kept", raw: "http://localhost:8000", want: "http://localhost:8000"},
		{name: "garbage falls back to previous", raw: "http://[::1", previous: "https://kept.example", want: "https://kept.example"},
		{name: "non-http scheme falls back", raw: "ftp://files.example", previous: "https://kept.example", want: "https://kept.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOrigin(tt.raw, tt.previous))
		})
	}
}

func TestNormalizeOrigin_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"spot.utilitarian.io",
		"https://spot.utilitarian.io/",
		"http://localhost:8000",
		"some garbage %%",
		"tunnel.example.dev:8443",
	}

	for _, input := range inputs {
		once := NormalizeOrigin(input, "")
		twice := NormalizeOrigin(once, "")
		assert.Equal(t, once, twice, "input %q", input)
	}
}

func TestResolveOrigin(t *testing.T) {
	origin, preset := ResolveOrigin("anything.example", OriginPresetLocal, "https://prev.example")
	assert.Empty(t, origin)
	assert.Equal(t, OriginPresetLocal, preset)

	origin, preset = ResolveOrigin("anything.example", OriginPresetRemote, "")
	assert.Equal(t, ProductionDataOrigin, origin)
	assert.Equal(t, OriginPresetRemote, preset)

	origin, preset = ResolveOrigin("tunnel.example.dev", "", "")
	assert.Equal(t, "https://tunnel.example.dev", origin)
	assert.Equal(t, OriginPresetCustom, preset)

	// Without a hint the production origin classifies itself as remote.
	origin, preset = ResolveOrigin(ProductionDataOrigin, "", "")
	assert.Equal(t, ProductionDataOrigin, origin)
	assert.Equal(t, OriginPresetRemote, preset)

	origin, preset = ResolveOrigin("", "", "")
	assert.Empty(t, origin)
	assert.Equal(t, OriginPresetLocal, preset)
}

func TestResolveOrigin_Idempotent(t *testing.T) {
	inputs := []struct {
		raw  string
		hint OriginPreset
	}{
		{raw: "tunnel.example.dev"},
		{raw: "", hint: OriginPresetLocal},
		{raw: "ignored", hint: OriginPresetRemote},
		{raw: ProductionDataOrigin},
		{raw: ""},
	}

	for _, input := range inputs {
		origin, preset := ResolveOrigin(input.raw, input.hint, "")
		again, presetAgain := ResolveOrigin(origin, preset, origin)
		assert.Equal(t, origin, again, "raw %q hint %q", input.raw, input.hint)
		assert.Equal(t, preset, presetAgain, "raw %q hint %q", input.raw, input.hint)
	}
}
