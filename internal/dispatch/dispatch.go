// Package dispatch routes classified items to their target integrations
// and owns the universal fallback notification channel.
package dispatch

import (
	"context"
	"fmt"

	"github.com/pennyhq/penny/pkg/models"
)

// Dispatcher delivers one item to its target integration.
type Dispatcher interface {
	// Name identifies the integration for routed_to records and logs.
	Name() string
	// Dispatch delivers the item. A returned error is always an *Error.
	Dispatch(ctx context.Context, item *models.Item) error
}

// Error is a dispatch failure. The caller converts it into exactly one
// fallback notification; it is never retried.
type Error struct {
	// Target is the integration that failed.
	Target string
	// Cause is the underlying failure.
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Target, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Notifier is the universal fallback channel.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Registry maps every category to its dispatcher. The map is closed:
// construction fails unless every known category has a handler, so adding
// a category without a route is a startup error rather than a silent
// runtime miss.
type Registry struct {
	dispatchers map[models.Category]Dispatcher
}

// NewRegistry builds a registry, validating exhaustive coverage.
func NewRegistry(dispatchers map[models.Category]Dispatcher) (*Registry, error) {
	for _, category := range models.AllCategories {
		if _, ok := dispatchers[category]; !ok {
			return nil, fmt.Errorf("no dispatcher registered for category %q", category)
		}
	}
	for category := range dispatchers {
		if !category.Valid() {
			return nil, fmt.Errorf("dispatcher registered for unknown category %q", category)
		}
	}
	return &Registry{dispatchers: dispatchers}, nil
}

// Dispatch delivers an item through its category's dispatcher and returns
// the integration name that handled it.
func (r *Registry) Dispatch(ctx context.Context, item *models.Item) (string, error) {
	d := r.dispatchers[item.Category]
	if d == nil {
		// Unreachable for valid items; construction guarantees coverage.
		return "", &Error{Target: string(item.Category), Cause: fmt.Errorf("no dispatcher")}
	}
	if err := d.Dispatch(ctx, item); err != nil {
		return "", err
	}
	return d.Name(), nil
}

// Target returns the dispatcher name for a category, for status output.
func (r *Registry) Target(category models.Category) string {
	if d := r.dispatchers[category]; d != nil {
		return d.Name()
	}
	return ""
}
