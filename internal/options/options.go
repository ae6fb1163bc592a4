// Package options implements generic functional options shared by the encoders,
// payload builders and response decoders.
package options

import "fmt"

// Option configures a target of type T, typically a pointer to a config struct.
type Option[T any] interface {
	apply(T) error
}

// Func adapts a plain function to the Option interface.
type Func[T any] struct {
	name string
	fn   func(T) error
}

func (f *Func[T]) apply(target T) error {
	if err := f.fn(target); err != nil {
		if f.name != "" {
			return fmt.Errorf("option %s: %w", f.name, err)
		}

		return err
	}

	return nil
}

// New returns an Option backed by fn.
func New[T any](fn func(T) error) *Func[T] {
	return &Func[T]{fn: fn}
}

// Named returns an Option backed by fn whose errors are prefixed with name.
func Named[T any](name string, fn func(T) error) *Func[T] {
	return &Func[T]{name: name, fn: fn}
}

// NoError returns an Option backed by a function that cannot fail.
func NoError[T any](fn func(T)) *Func[T] {
	return &Func[T]{fn: func(target T) error {
		fn(target)
		return nil
	}}
}

// Apply applies opts to target in order and stops at the first error.
// Nil options are skipped.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(target); err != nil {
			return err
		}
	}

	return nil
}
