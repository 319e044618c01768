// Package store is a registry of blob-store factories.
// Each store implementation registers itself under a type name in an init function,
// and callers build stores from JSON-style configuration maps.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobg/bsdrive"
)

type Factory func(context.Context, map[string]interface{}) (bsdrive.Store, error)

var registry = make(map[string]Factory)

func Register(key string, f Factory) {
	registry[key] = f
}

func Create(ctx context.Context, key string, conf map[string]interface{}) (bsdrive.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfig creates a store whose type is given by the "type" entry in conf.
func FromConfig(ctx context.Context, conf map[string]interface{}) (bsdrive.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config missing `type` parameter")
	}
	return Create(ctx, typ, conf)
}

// Types lists the registered store types.
func Types() []string {
	var result []string
	for k := range registry {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
