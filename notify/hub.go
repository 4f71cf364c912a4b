// Package notify dispatches values to subscribers on their own goroutines.
//
// Publishers (the serial receive and send loops) never run subscriber code on
// their own stack and never block on a slow subscriber. Each subscriber sees
// values in publish order.
package notify

import "sync"

// Hub fans out published values to every subscriber. The zero value is ready
// to use.
type Hub[T any] struct {
	mx     sync.Mutex
	subs   map[*subscriber[T]]struct{}
	closed bool
}

type subscriber[T any] struct {
	fn func(T)

	mx    sync.Mutex
	queue []T

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe registers fn and returns a function that removes it again.
func (h *Hub[T]) Subscribe(fn func(T)) (cancel func()) {
	return h.subscribe(fn, nil)
}

// SubscribeWith registers fn and delivers initial to it before any value
// published afterwards.
func (h *Hub[T]) SubscribeWith(initial T, fn func(T)) (cancel func()) {
	return h.subscribe(fn, []T{initial})
}

func (h *Hub[T]) subscribe(fn func(T), initial []T) func() {
	s := &subscriber[T]{
		fn:    fn,
		queue: initial,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	if len(initial) > 0 {
		s.wake <- struct{}{}
	}

	h.mx.Lock()
	if h.closed {
		h.mx.Unlock()
		return func() {}
	}
	if h.subs == nil {
		h.subs = make(map[*subscriber[T]]struct{})
	}
	h.subs[s] = struct{}{}
	h.mx.Unlock()

	go s.loop()

	return func() {
		h.mx.Lock()
		delete(h.subs, s)
		h.mx.Unlock()
		s.stop()
	}
}

// Publish queues v for every current subscriber. It never blocks on
// subscriber code.
func (h *Hub[T]) Publish(v T) {
	h.mx.Lock()
	defer h.mx.Unlock()
	for s := range h.subs {
		s.push(v)
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mx.Lock()
	defer h.mx.Unlock()
	return len(h.subs)
}

// Close stops every subscriber. Pending values are discarded.
func (h *Hub[T]) Close() {
	h.mx.Lock()
	subs := h.subs
	h.subs = nil
	h.closed = true
	h.mx.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (s *subscriber[T]) push(v T) {
	s.mx.Lock()
	s.queue = append(s.queue, v)
	s.mx.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[T]) stop() { s.once.Do(func() { close(s.done) }) }

func (s *subscriber[T]) next() (v T, ok bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.queue) == 0 {
		return v, false
	}
	v = s.queue[0]
	var zero T
	s.queue[0] = zero
	s.queue = s.queue[1:]
	return v, true
}

func (s *subscriber[T]) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			select {
			case <-s.done:
				return
			default:
			}
			v, ok := s.next()
			if !ok {
				break
			}
			s.fn(v)
		}
	}
}
