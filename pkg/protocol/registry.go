package protocol

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goran-ethernal/GovIndexor/internal/logger"
	"github.com/goran-ethernal/GovIndexor/pkg/config"
)

// Factory is a function that creates a new protocol instance for one network.
type Factory func(cfg config.ProtocolConfig, log *logger.Logger) (*Protocol, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register registers a protocol factory with the given type name.
// This is typically called in init() functions of protocol packages.
// The type name is case-insensitive and will be stored in lowercase.
func Register(protocolType string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	name := strings.ToLower(protocolType)
	if _, exists := registry[name]; exists {
		logger.GetDefaultLogger().Infof("protocol with name %s already in protocol registry. "+
			"It will be overwritten.", name)
	}

	registry[name] = factory
}

// GetFactory returns the factory for the given protocol type.
// Returns nil if the type is not registered.
// The lookup is case-insensitive.
func GetFactory(protocolType string) Factory {
	mu.RLock()
	defer mu.RUnlock()
	return registry[strings.ToLower(protocolType)]
}

// ListRegistered returns the sorted list of all registered protocol types.
func ListRegistered() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create creates a new protocol instance using the registered factory.
// Returns an error if the type is not registered or if creation fails.
// The type lookup is case-insensitive.
func Create(protocolType string, cfg config.ProtocolConfig, log *logger.Logger) (*Protocol, error) {
	factory := GetFactory(protocolType)
	if factory == nil {
		return nil, fmt.Errorf("unknown protocol type: %s (registered types: %v)", protocolType, ListRegistered())
	}

	return factory(cfg, log)
}
