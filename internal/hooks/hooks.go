// Package hooks provides typed extension points. A FilterChain folds a value
// through its filters in registration order; an ActionList notifies listeners
// and cannot change the outcome of the operation that fired it.
package hooks

import (
	"fmt"
	"log/slog"
	"sync"
)

// Filter transforms a value. Filters must be pure apart from logging.
type Filter[T any] func(T) T

// Action observes a value.
type Action[T any] func(T)

// FilterChain is an ordered list of filters. The zero value is ready to use.
type FilterChain[T any] struct {
	mu      sync.RWMutex
	filters []Filter[T]
}

// Add appends a filter.
func (c *FilterChain[T]) Add(f Filter[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
}

// Apply passes v through every filter in order.
func (c *FilterChain[T]) Apply(v T) T {
	c.mu.RLock()
	filters := c.filters
	c.mu.RUnlock()

	for _, f := range filters {
		v = f(v)
	}
	return v
}

// Len returns the number of registered filters.
func (c *FilterChain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// ActionList is an ordered list of listeners. The zero value is ready to use.
type ActionList[T any] struct {
	name    string
	logger  *slog.Logger
	mu      sync.RWMutex
	actions []Action[T]
}

// Add appends a listener.
func (l *ActionList[T]) Add(a Action[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, a)
}

// Fire calls every listener in order. A panicking listener is logged and
// skipped; the remaining listeners still run.
func (l *ActionList[T]) Fire(v T) {
	l.mu.RLock()
	actions := l.actions
	l.mu.RUnlock()

	for i, a := range actions {
		l.call(i, a, v)
	}
}

func (l *ActionList[T]) call(i int, a Action[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			logger := l.logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("hook listener panicked",
				slog.String("hook", l.name),
				slog.Int("index", i),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	a(v)
}

// Len returns the number of registered listeners.
func (l *ActionList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.actions)
}
