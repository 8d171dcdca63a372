// Package optional implements a value which may or may not be set.
package optional

// Optional holds a value of type T which may be unset. The zero value is an
// unset Optional.
type Optional[T any] struct {
	value T
	set   bool
}

// Of returns an Optional which holds val.
func Of[T any](val T) Optional[T] {
	return Optional[T]{value: val, set: true}
}

// Set stores val and marks the Optional as set.
func (o *Optional[T]) Set(val T) {
	o.value = val
	o.set = true
}

// HasValue returns true if a value has been set.
func (o Optional[T]) HasValue() bool {
	return o.set
}

// Get returns the stored value. It panics when no value has been set so
// callers are expected to check with HasValue first.
func (o Optional[T]) Get() T {
	if !o.set {
		panic("optional: Get called on an unset value")
	}
	return o.value
}

// GetOr returns the stored value or fallback if there is none.
func (o Optional[T]) GetOr(fallback T) T {
	if !o.set {
		return fallback
	}
	return o.value
}
