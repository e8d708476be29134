package catalogapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// ComponentName is the registry name of the catalog API.
const ComponentName = "catalog-api"

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the catalog-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        ComponentName,
		Factory:     NewComponent,
		Schema:      catalogAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "semtypes",
		Description: "HTTP endpoints for the semantic type catalog, relation statistics and column features",
		Version:     "0.1.0",
	})
}
