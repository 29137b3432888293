package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

var (
	ErrCacheMiss   = errors.New("cache: key not found")
	ErrInvalidDest = errors.New("cache: destination must be a non-nil pointer")
)

// Service is the cache capability handed to components that need one.
// Get copies the stored value into dest, which must be a pointer.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// GetTyped is a convenience wrapper around Service.Get.
func GetTyped[T any](ctx context.Context, c Service, key string) (T, error) {
	var out T
	err := c.Get(ctx, key, &out)
	return out, err
}

// assign stores value into *dest, directly when the types line up and
// through JSON otherwise.
func assign(dest, value interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return ErrInvalidDest
	}
	vv := reflect.ValueOf(value)
	if vv.IsValid() && vv.Type().AssignableTo(dv.Elem().Type()) {
		dv.Elem().Set(vv)
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: decode value: %w", err)
	}
	return nil
}
