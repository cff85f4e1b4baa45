package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type subscription struct {
	id uint64
	fn func(context.Context, any)
}

// Bus is an in-process event dispatcher owned by one engine. Handlers run
// synchronously on the publishing goroutine in subscription order; a
// panicking handler is recovered and logged.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]subscription
	nextID   uint64
	count    atomic.Int64
	closed   atomic.Bool
	logger   *zap.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a new Bus.
func New(opts ...Option) *Bus {
	b := &Bus{handlers: make(map[reflect.Type][]subscription), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HasSubscribers reports whether any handler is registered. Publishers use
// it to skip building events nobody observes.
func (b *Bus) HasSubscribers() bool {
	return b != nil && !b.closed.Load() && b.count.Load() > 0
}

// Close drops every handler. Publishing on a closed bus is a no-op.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.closed.Store(true)
	b.handlers = make(map[reflect.Type][]subscription)
	b.count.Store(0)
	b.mu.Unlock()
}

func (b *Bus) subscribe(t reflect.Type, fn func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, fn: fn})
	b.count.Add(1)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			hs := b.handlers[t]
			for i, s := range hs {
				if s.id == id {
					hs = append(hs[:i:i], hs[i+1:]...)
					b.count.Add(-1)
					break
				}
			}
			if len(hs) == 0 {
				delete(b.handlers, t)
			} else {
				b.handlers[t] = hs
			}
		})
	}
}

// emit dispatches e to all handlers of its dynamic type.
func (b *Bus) emit(ctx context.Context, t reflect.Type, e any) {
	b.mu.RLock()
	hs := b.handlers[t]
	if len(hs) == 0 {
		b.mu.RUnlock()
		return
	}
	copied := append([]subscription(nil), hs...)
	b.mu.RUnlock()
	for _, s := range copied {
		b.call(ctx, s, e)
	}
}

func (b *Bus) call(ctx context.Context, s subscription, e any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", fmt.Sprintf("%T", e)),
				zap.Any("panic", r),
			)
		}
	}()
	s.fn(ctx, e)
}

// Subscribe registers h for events of type T on b.
func Subscribe[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	if b == nil {
		return func() {}
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	return b.subscribe(t, func(ctx context.Context, v any) { h(ctx, v.(T)) })
}

// Publish sends e to the handlers subscribed to T on b.
func Publish[T any](ctx context.Context, b *Bus, e T) {
	if !b.HasSubscribers() {
		return
	}
	b.emit(ctx, reflect.TypeOf((*T)(nil)).Elem(), e)
}
