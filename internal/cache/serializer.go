package cache

import (
	"encoding/json"

	"github.com/LavishGent/callgate/internal/types"
)

// JSONSerializer implements Serializer using JSON encoding.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Marshal serializes a value to JSON bytes.
func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes JSON bytes into the destination.
func (s *JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

func encodeEnvelope(s types.Serializer, env types.Envelope) ([]byte, error) {
	return s.Marshal(env)
}

func decodeEnvelope(s types.Serializer, data []byte) (*types.Envelope, error) {
	var env types.Envelope
	if err := s.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

var _ types.Serializer = (*JSONSerializer)(nil)
