package invalidation

import (
	"context"
	"errors"
	"sync"
)

// Handler 处理单个事件。
type Handler func(ctx context.Context, event Event)

// Dispatcher 是事件类型到处理函数的显式映射表。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewDispatcher 创建空的 Dispatcher。
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind][]Handler)}
}

// On 为一个或多个事件类型注册处理函数。
func (d *Dispatcher) On(handler Handler, kinds ...Kind) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, kind := range kinds {
		d.handlers[kind] = append(d.handlers[kind], handler)
	}
}

// Dispatch 同步调用事件类型对应的所有处理函数，返回被调用的数量。
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) int {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[event.Kind]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
	return len(handlers)
}

// ErrBusFull 表示事件队列已满，事件被丢弃。
var ErrBusFull = errors.New("event bus full")

// Bus 在 Dispatcher 之上加一层缓冲 channel，由单个 goroutine 顺序消费。
type Bus struct {
	dispatcher *Dispatcher
	events     chan Event
}

// NewBus 创建容量为 size 的事件总线。
func NewBus(dispatcher *Dispatcher, size int) *Bus {
	if size <= 0 {
		size = 1
	}
	return &Bus{dispatcher: dispatcher, events: make(chan Event, size)}
}

// Publish 非阻塞地投递事件，队列满时返回 ErrBusFull。
func (b *Bus) Publish(event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	select {
	case b.events <- event:
		return nil
	default:
		return ErrBusFull
	}
}

// Run 持续消费事件直到 ctx 结束。
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.events:
			b.dispatcher.Dispatch(ctx, event)
		}
	}
}
