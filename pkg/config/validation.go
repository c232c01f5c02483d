package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// blobStoreTypes lists the valid blob backend selectors; the other stores
// accept the subset without s3.
var (
	blobStoreTypes  = map[string]bool{"memory": true, "badger": true, "s3": true}
	otherStoreTypes = map[string]bool{"memory": true, "badger": true}
)

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !blobStoreTypes[cfg.Blob.Type] {
		return fmt.Errorf("blob: unknown store type %q", cfg.Blob.Type)
	}

	stores := map[string]*StoreSelection{
		"dag":       &cfg.Dag,
		"ownership": &cfg.Ownership,
		"tokens":    &cfg.Tokens,
		"depots":    &cfg.Depots,
		"roles":     &cfg.Roles,
	}
	for name, selection := range stores {
		if !otherStoreTypes[selection.Type] {
			return fmt.Errorf("%s: unknown store type %q", name, selection.Type)
		}
	}

	// Badger owns its directory exclusively; two stores sharing a path
	// would corrupt each other.
	paths := make(map[string]string)
	check := map[string]*StoreSelection{
		"blob":      &cfg.Blob,
		"dag":       &cfg.Dag,
		"ownership": &cfg.Ownership,
		"tokens":    &cfg.Tokens,
		"depots":    &cfg.Depots,
		"roles":     &cfg.Roles,
	}
	for name, selection := range check {
		if selection.Type != "badger" {
			continue
		}
		path, _ := selection.Badger["db_path"].(string)
		if path == "" {
			continue // the factory reports the missing path with context
		}
		if other, taken := paths[path]; taken && !sharedBadgerPair(name, other) {
			return fmt.Errorf("%s: badger db_path %q already used by %s store", name, path, other)
		}
		paths[path] = name
	}

	return nil
}

// sharedBadgerPair reports whether two stores are allowed to share one
// badger database. Blob and dag records live in one keyspace with
// disjoint prefixes, so they may share.
func sharedBadgerPair(a string, b string) bool {
	return (a == "blob" && b == "dag") || (a == "dag" && b == "blob")
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
