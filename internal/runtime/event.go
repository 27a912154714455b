package runtime

import (
	"context"
	"sync"
)

// mailboxSize 是每个模块事件信箱的缓冲容量。
// 事件必须送达而不能丢弃，信箱满时投递方会阻塞等待消费者。
const mailboxSize = 256

// Event 是模块之间传递的消息。实现方只需提供稳定的事件名，
// 具体载荷由各包自行定义。
type Event interface {
	EventName() string
}

// StopEvent 通知模块结束监听。处理器仍会收到该事件，
// 以便在退出前完成收尾动作。
type StopEvent struct{}

func (StopEvent) EventName() string { return "stop" }

// EventListener 是模块的事件信箱，单消费者按先进先出顺序处理。
type EventListener struct {
	events chan Event
}

func NewEventListener() *EventListener {
	return &EventListener{events: make(chan Event, mailboxSize)}
}

// Deliver 把事件放入信箱。信箱满时阻塞直到消费者腾出空间。
func (l *EventListener) Deliver(event Event) {
	l.events <- event
}

// Listen 循环消费信箱并调用 handler，收到 StopEvent 时
// 在处理完该事件后正常返回。上下文取消时先把已入箱的事件
// 按序处理完再返回取消原因，已投递的停止哨兵必达处理器。
func (l *EventListener) Listen(ctx context.Context, handler func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-l.events:
					handler(event)
					if _, ok := event.(StopEvent); ok {
						return nil
					}
				default:
					return ctx.Err()
				}
			}
		case event := <-l.events:
			handler(event)
			if _, ok := event.(StopEvent); ok {
				return nil
			}
		}
	}
}

// EventEmitter 把事件扇出给所有已订阅的信箱。
type EventEmitter struct {
	mu        sync.Mutex
	listeners []*EventListener
}

func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// Subscribe 登记一个接收方信箱。
func (e *EventEmitter) Subscribe(listener *EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// Emit 把事件投递给全部订阅者。
func (e *EventEmitter) Emit(event Event) {
	e.mu.Lock()
	listeners := make([]*EventListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, listener := range listeners {
		listener.Deliver(event)
	}
}
