package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/LavishGent/callgate/internal/types"
)

// Key segments appended to endpoint:action. Batch keys end with a separator
// so substring invalidation of batch "1" never matches batch "12".
const (
	userSegment  = ":u:"
	dateSegment  = ":d:"
	batchSegment = ":b:"
	hashSegment  = ":h:"

	anonymousUser = "anonymous"
	dateLayout    = "2006-01-02"
)

var (
	batchIDFields = []string{"batchId", "batch_id"}
	periodFields  = []string{"day", "period"}
)

// KeyBuilder derives deterministic cache keys from a request and its policy.
type KeyBuilder struct {
	session   types.Session
	now       func() time.Time
	validator *types.KeyValidator
}

// NewKeyBuilder creates a key builder. A nil session yields the anonymous
// user and a nil clock uses time.Now.
func NewKeyBuilder(session types.Session, now func() time.Time, validator *types.KeyValidator) *KeyBuilder {
	if now == nil {
		now = time.Now
	}
	return &KeyBuilder{
		session:   session,
		now:       now,
		validator: validator,
	}
}

// Build returns the cache key for spec under policy.
func (b *KeyBuilder) Build(ctx context.Context, spec types.RequestSpec, policy types.CachePolicy) (string, error) {
	prefix := spec.PolicyKey()

	var key string
	switch policy.KeyStrategy {
	case types.KeyUser:
		key = prefix + userSegment + b.userID(ctx)
	case types.KeyDate:
		key = prefix + dateSegment + b.now().Format(dateLayout)
	case types.KeyBatch:
		if batch, ok := payloadField(spec.Payload, batchIDFields); ok {
			key = prefix + batchSegment + batch + ":"
		}
	case types.KeyBatchDay:
		if batch, ok := payloadField(spec.Payload, batchIDFields); ok {
			period, ok := payloadField(spec.Payload, periodFields)
			if !ok {
				period = b.now().Format(dateLayout)
			}
			key = prefix + batchSegment + batch + ":" + period
		}
	}

	if key == "" {
		hash, err := PayloadHash(spec.Payload)
		if err != nil {
			return "", types.NewCacheError("BuildKey", prefix, "keys", err)
		}
		key = prefix + hashSegment + hash
	}

	if b.validator != nil {
		if err := b.validator.Validate(key); err != nil {
			return "", err
		}
	}
	return key, nil
}

func (b *KeyBuilder) userID(ctx context.Context) string {
	if b.session == nil {
		return anonymousUser
	}
	if id := b.session.UserID(ctx); id != "" {
		return id
	}
	return anonymousUser
}

// PayloadHash returns a stable hex digest of payload. encoding/json sorts map
// keys, so equal payloads hash equally regardless of insertion order.
func PayloadHash(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "empty", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// BatchScope returns the key fragment shared by every entry scoped to batchID.
func BatchScope(batchID string) string {
	return batchSegment + batchID + ":"
}

// UserScope returns the key fragment shared by every user-scoped entry.
func UserScope() string {
	return userSegment
}

func payloadField(payload map[string]any, names []string) (string, bool) {
	for _, name := range names {
		v, ok := payload[name]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s != "" {
			return s, true
		}
	}
	return "", false
}
