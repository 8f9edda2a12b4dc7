// Package policy holds the static endpoint:action to cache policy table.
package policy

import (
	"fmt"
	"sort"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

// Fallback is used for endpoint:action pairs that have no entry.
var Fallback = types.CachePolicy{
	Level:       types.LevelShort,
	KeyStrategy: types.KeyDefault,
}

// Defaults returns the compiled-in policy entries.
func Defaults() map[string]types.CachePolicy {
	return map[string]types.CachePolicy{
		"reference:getSettings": {Level: types.LevelStatic, Preload: true},
		"reference:getBreeds":   {Level: types.LevelStatic, Preload: true},
		"session:whoami":        {Level: types.LevelStable, KeyStrategy: types.KeyUser},

		"batch:list":       {Level: types.LevelVolatile, KeyStrategy: types.KeyUser},
		"batch:getDetails": {Level: types.LevelVolatile, KeyStrategy: types.KeyBatch},
		"batch:create":     {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},
		"batch:update":     {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},
		"batch:close":      {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},

		"production:getDaily": {Level: types.LevelShort, KeyStrategy: types.KeyBatchDay},
		"production:record":   {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},

		"health:getRecords": {Level: types.LevelVolatile, KeyStrategy: types.KeyBatch},
		"health:record":     {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},

		"finance:getSummary":      {Level: types.LevelVolatile, KeyStrategy: types.KeyDate},
		"finance:getTransactions": {Level: types.LevelShort, KeyStrategy: types.KeyUser},
		"finance:addTransaction":  {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},
	}
}

// Table maps endpoint:action to an immutable CachePolicy. It has no mutation
// methods once built and is safe for concurrent use.
type Table struct {
	entries map[string]types.CachePolicy
}

// New builds a table from the compiled defaults with deploy-time overrides applied on top.
func New(overrides []config.PolicyConfig) (*Table, error) {
	entries := Defaults()
	for i, o := range overrides {
		p, err := fromConfig(o)
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s:%s): %w", i, o.Endpoint, o.Action, err)
		}
		entries[o.Endpoint+":"+o.Action] = p
	}
	return &Table{entries: entries}, nil
}

// NewFromMap builds a table containing exactly the given entries.
func NewFromMap(entries map[string]types.CachePolicy) *Table {
	copied := make(map[string]types.CachePolicy, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Table{entries: copied}
}

func fromConfig(c config.PolicyConfig) (types.CachePolicy, error) {
	level := types.CacheLevel(c.Level)
	if !level.Valid() {
		return types.CachePolicy{}, fmt.Errorf("invalid level %d", c.Level)
	}
	strategy, err := types.ParseKeyStrategy(c.KeyStrategy)
	if err != nil {
		return types.CachePolicy{}, err
	}
	update := types.UpdateStrategy(c.UpdateStrategy)
	if update != types.UpdateNone && update != types.UpdateInvalidate {
		return types.CachePolicy{}, fmt.Errorf("unknown update strategy %q", c.UpdateStrategy)
	}
	if c.CustomTTL < 0 {
		return types.CachePolicy{}, fmt.Errorf("customTTL must not be negative")
	}
	return types.CachePolicy{
		Level:          level,
		CustomTTL:      c.CustomTTL,
		KeyStrategy:    strategy,
		Preload:        c.Preload,
		UpdateStrategy: update,
	}, nil
}

// Lookup returns the policy for endpoint:action, or Fallback.
func (t *Table) Lookup(endpoint, action string) types.CachePolicy {
	if p, ok := t.entries[endpoint+":"+action]; ok {
		return p
	}
	return Fallback
}

// For returns the policy governing spec.
func (t *Table) For(spec types.RequestSpec) types.CachePolicy {
	return t.Lookup(spec.Endpoint, spec.Action)
}

// Has reports whether endpoint:action has an explicit entry.
func (t *Table) Has(endpoint, action string) bool {
	_, ok := t.entries[endpoint+":"+action]
	return ok
}

// Preloaded returns the sorted endpoint:action keys marked for warmup.
func (t *Table) Preloaded() []string {
	var keys []string
	for k, p := range t.entries {
		if p.Preload && p.Level.Cacheable() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of explicit entries.
func (t *Table) Len() int {
	return len(t.entries)
}
