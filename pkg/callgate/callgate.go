package callgate

import (
	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/gateway"
)

// New creates a manager with the default configuration.
func New(transport Transport, opts ...ManagerOption) (*Manager, error) {
	return NewFromConfig(config.DefaultConfig(), transport, opts...)
}

// NewFromConfig creates a manager from cfg.
func NewFromConfig(cfg *Configuration, transport Transport, opts ...ManagerOption) (*Manager, error) {
	s := applySettings(opts)
	return gateway.NewManager(cfg, transport, &s.manager)
}

// NewSafe returns a fail-safe wrapper whose manager is built from cfg on
// first use. If that fails every call goes directly to transport.
func NewSafe(cfg *Configuration, transport Transport, opts ...ManagerOption) *Wrapper {
	s := applySettings(opts)
	logger := loggerFrom(s.manager.Logger)
	return gateway.NewWrapper(func() (*Manager, error) {
		return gateway.NewManager(cfg, transport, &s.manager)
	}, transport, logger)
}

// Config returns a default configuration that can be modified before use.
func Config() *Configuration {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests.
func TestConfig() *Configuration {
	return config.ForTesting()
}

// LoadConfig loads a JSON, YAML or TOML file and applies CALLGATE_* and DD_*
// environment overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Configuration, error) {
	return config.LoadWithEnv(path)
}
