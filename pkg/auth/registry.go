package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when authProvider names no registered validator.
var ErrUnknownProvider = errors.New("auth: unknown provider")

// ProviderConfig is the authProvider setting plus the raw settings block
// handed to that provider's factory. The resulting Validator guards the /v1
// routes and the legacy generate_image routes.
type ProviderConfig struct {
	Type   string          `yaml:"type" json:"type"`
	Config json.RawMessage `yaml:"config" json:"config"`
}

// ValidatorFactory builds a bearer-token validator from its settings block.
type ValidatorFactory func(config json.RawMessage) (Validator, error)

var (
	factories = make(map[string]ValidatorFactory)
	mu        sync.RWMutex
)

// RegisterProvider makes a validator available under name. Provider packages
// call it from init, so a blank import is what enables "static" or "jwt".
func RegisterProvider(name string, factory ValidatorFactory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// NewValidator builds the validator the server checks bearer tokens against.
func NewValidator(pc ProviderConfig) (Validator, error) {
	mu.RLock()
	factory, ok := factories[pc.Type]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownProvider, pc.Type, ListProviders())
	}
	v, err := factory(pc.Config)
	if err != nil {
		return nil, fmt.Errorf("auth provider %s: %w", pc.Type, err)
	}
	return v, nil
}

// ListProviders returns the registered provider names in sorted order.
func ListProviders() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
