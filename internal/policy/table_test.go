package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

func TestTableDefaults(t *testing.T) {
	table, err := New(nil)
	require.NoError(t, err)

	p := table.Lookup("batch", "getDetails")
	assert.Equal(t, types.LevelVolatile, p.Level)
	assert.Equal(t, types.KeyBatch, p.KeyStrategy)

	p = table.Lookup("batch", "create")
	assert.Equal(t, types.LevelNoCache, p.Level)
	assert.Equal(t, types.UpdateInvalidate, p.UpdateStrategy)

	assert.Equal(t, len(Defaults()), table.Len())
}

func TestTableFallback(t *testing.T) {
	table, err := New(nil)
	require.NoError(t, err)

	assert.False(t, table.Has("unknown", "thing"))
	assert.Equal(t, Fallback, table.Lookup("unknown", "thing"))
	assert.Equal(t, Fallback, table.For(types.RequestSpec{Endpoint: "unknown", Action: "thing"}))
}

func TestTableOverrides(t *testing.T) {
	table, err := New([]config.PolicyConfig{
		{Endpoint: "batch", Action: "getDetails", Level: 1, KeyStrategy: "batch-day", CustomTTL: time.Minute},
		{Endpoint: "feed", Action: "list", Level: 4, KeyStrategy: "user", Preload: true},
	})
	require.NoError(t, err)

	p := table.Lookup("batch", "getDetails")
	assert.Equal(t, types.LevelStatic, p.Level)
	assert.Equal(t, types.KeyBatchDay, p.KeyStrategy)
	assert.Equal(t, time.Minute, p.CustomTTL)

	assert.True(t, table.Has("feed", "list"))
	assert.Contains(t, table.Preloaded(), "feed:list")
}

func TestTableOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.PolicyConfig
	}{
		{"bad level", config.PolicyConfig{Endpoint: "a", Action: "b", Level: 0}},
		{"bad key strategy", config.PolicyConfig{Endpoint: "a", Action: "b", Level: 2, KeyStrategy: "galaxy"}},
		{"bad update strategy", config.PolicyConfig{Endpoint: "a", Action: "b", Level: 5, UpdateStrategy: "merge"}},
		{"negative ttl", config.PolicyConfig{Endpoint: "a", Action: "b", Level: 2, CustomTTL: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]config.PolicyConfig{tt.cfg})
			assert.Error(t, err)
		})
	}
}

func TestTableIsolatedFromSource(t *testing.T) {
	src := map[string]types.CachePolicy{"a:b": {Level: types.LevelStable}}
	table := NewFromMap(src)
	src["a:b"] = types.CachePolicy{Level: types.LevelNoCache}

	assert.Equal(t, types.LevelStable, table.Lookup("a", "b").Level)
}

func TestPreloadedSorted(t *testing.T) {
	table, err := New(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"reference:getBreeds", "reference:getSettings"}, table.Preloaded())
}
