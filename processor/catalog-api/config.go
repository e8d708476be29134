package catalogapi

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/semtypes/storage"
)

// catalogAPISchema defines the configuration schema.
var catalogAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the catalog-api component.
type Config struct {
	// Backend selects the document store: nats, bolt or memory.
	Backend string `json:"backend" schema:"type:string,description:Storage backend (nats bolt or memory),category:basic,default:nats"`

	// BoltPath is the database file used by the bolt backend.
	BoltPath string `json:"bolt_path,omitempty" schema:"type:string,description:Database file for the bolt backend,category:advanced,default:.semtypes/semtypes.db"`

	TypesBucket     string `json:"types_bucket" schema:"type:string,description:Bucket for semantic types,category:advanced,default:SEMTYPES_TYPES"`
	ColumnsBucket   string `json:"columns_bucket" schema:"type:string,description:Bucket for columns,category:advanced,default:SEMTYPES_COLUMNS"`
	ModelsBucket    string `json:"models_bucket" schema:"type:string,description:Bucket for bulk models,category:advanced,default:SEMTYPES_MODELS"`
	RelationsBucket string `json:"relations_bucket" schema:"type:string,description:Bucket for relation counters,category:advanced,default:SEMTYPES_RELATIONS"`
	FeaturesBucket  string `json:"features_bucket" schema:"type:string,description:Bucket for column feature records,category:advanced,default:SEMTYPES_FEATURES"`

	// IndexDir holds the feature search indexes. Empty keeps them in memory.
	IndexDir string `json:"index_dir,omitempty" schema:"type:string,description:Directory for feature search indexes (empty for memory),category:advanced"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Backend:         storage.BackendNATS,
		BoltPath:        ".semtypes/semtypes.db",
		TypesBucket:     storage.BucketTypes,
		ColumnsBucket:   storage.BucketColumns,
		ModelsBucket:    storage.BucketModels,
		RelationsBucket: storage.BucketRelations,
		FeaturesBucket:  storage.BucketFeatures,
	}
}

// applyDefaults fills every empty field from DefaultConfig.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	c.Backend = strings.ToLower(c.Backend)
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.BoltPath == "" {
		c.BoltPath = d.BoltPath
	}
	if c.TypesBucket == "" {
		c.TypesBucket = d.TypesBucket
	}
	if c.ColumnsBucket == "" {
		c.ColumnsBucket = d.ColumnsBucket
	}
	if c.ModelsBucket == "" {
		c.ModelsBucket = d.ModelsBucket
	}
	if c.RelationsBucket == "" {
		c.RelationsBucket = d.RelationsBucket
	}
	if c.FeaturesBucket == "" {
		c.FeaturesBucket = d.FeaturesBucket
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := storage.ValidateBackend(c.Backend); err != nil {
		return err
	}
	buckets := map[string]string{
		"types_bucket":     c.TypesBucket,
		"columns_bucket":   c.ColumnsBucket,
		"models_bucket":    c.ModelsBucket,
		"relations_bucket": c.RelationsBucket,
		"features_bucket":  c.FeaturesBucket,
	}
	seen := make(map[string]string, len(buckets))
	for field, name := range buckets {
		if name == "" {
			return fmt.Errorf("%s is required", field)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%s and %s must name different buckets", other, field)
		}
		seen[name] = field
	}
	return nil
}
