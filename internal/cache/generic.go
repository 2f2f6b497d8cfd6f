package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetTyped is a type-safe generic wrapper around Store.Get.
// It automatically unmarshals the cached JSON value into the target type T.
//
// Usage:
//
//	doc, found, err := cache.GetTyped[openapi3.T](s, ctx, key)
func GetTyped[T any](s Store, ctx context.Context, key string) (T, bool, error) {
	var zero T
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return zero, found, err
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, false, fmt.Errorf("unmarshal cached value: %w", err)
	}
	return result, true, nil
}

// SetTyped is a type-safe generic wrapper around Store.Set.
// It accepts a typed value instead of any, providing compile-time type safety
// at the call site.
//
// Usage:
//
//	err := cache.SetTyped[openapi3.T](s, ctx, key, doc, 5*time.Minute)
func SetTyped[T any](s Store, ctx context.Context, key string, value T, ttl time.Duration) error {
	return s.Set(ctx, key, value, ttl)
}
