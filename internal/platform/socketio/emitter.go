package socketio

import "sync"

// Subscription identifies one registered handler. Passing it to Off removes
// exactly that handler and no other.
type Subscription struct {
	name string
}

// Name returns the event name the subscription listens to.
func (s *Subscription) Name() string { return s.name }

type listener[T any] struct {
	sub *Subscription
	fn  func(T)
}

// Emitter is a named-event handler registry. Multiple handlers per name are
// called in registration order. The zero value is ready to use.
type Emitter[T any] struct {
	mu       sync.RWMutex
	handlers map[string][]listener[T]
}

// On registers fn for name and returns its subscription handle.
func (e *Emitter[T]) On(name string, fn func(T)) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[string][]listener[T])
	}
	sub := &Subscription{name: name}
	e.handlers[name] = append(e.handlers[name], listener[T]{sub: sub, fn: fn})
	return sub
}

// Off removes the handler registered under sub. It reports whether a handler
// was removed.
func (e *Emitter[T]) Off(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.handlers[sub.name]
	for i, l := range list {
		if l.sub != sub {
			continue
		}
		next := make([]listener[T], 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(e.handlers, sub.name)
		} else {
			e.handlers[sub.name] = next
		}
		return true
	}
	return false
}

// Emit calls every handler registered for name and returns how many ran.
// Handlers run on the caller's goroutine and must not block.
func (e *Emitter[T]) Emit(name string, v T) int {
	e.mu.RLock()
	list := e.handlers[name]
	e.mu.RUnlock()

	for _, l := range list {
		l.fn(v)
	}
	return len(list)
}

// Count returns the number of handlers registered for name.
func (e *Emitter[T]) Count(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}
