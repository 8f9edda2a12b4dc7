package types

import (
	"encoding/json"
	"log/slog"
)

const redacted = "[REDACTED]"

// SecretString holds a credential (a Redis password, a bearer token) that
// must never be rendered. Every printing and encoding path yields a mask.
type SecretString struct {
	value string
}

func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

// Value returns the plaintext for handing to a client library.
func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}

func (s SecretString) mask() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

func (s SecretString) String() string   { return s.mask() }
func (s SecretString) GoString() string { return `types.SecretString("` + s.mask() + `")` }

// LogValue keeps slog handlers from reflecting into the struct.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.mask())
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.mask())
}

func (s SecretString) MarshalText() ([]byte, error) {
	return []byte(s.mask()), nil
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	s.value = value
	return nil
}

// UnmarshalText lets koanf and mapstructure fill the secret from env vars
// and config files.
func (s *SecretString) UnmarshalText(text []byte) error {
	s.value = string(text)
	return nil
}
