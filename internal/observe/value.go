// Package observe provides a value that pushes its current state to subscribers.
package observe

import "sync"

// Value holds a changing condition. Subscribers get the current value on
// registration and every later change, in order. Callbacks run on the
// goroutine that called Set or Subscribe and must not call Set themselves.
type Value[T comparable] struct {
	notifyMu sync.Mutex // serializes deliveries
	mu       sync.Mutex
	value    T
	nextID   int
	subs     map[int]func(T)
}

func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{value: initial, subs: make(map[int]func(T))}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set stores next and notifies subscribers. Setting the current value is a no-op.
// It reports whether the value changed.
func (v *Value[T]) Set(next T) bool {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	if v.value == next {
		v.mu.Unlock()
		return false
	}
	v.value = next
	subs := make([]func(T), 0, len(v.subs))
	for id := 0; id < v.nextID; id++ {
		if fn, ok := v.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	v.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

// Subscribe registers fn and immediately delivers the current value.
// The returned function unregisters fn; calling it more than once is safe.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	current := v.value
	v.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered callbacks.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
