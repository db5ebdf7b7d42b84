package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "events")

// Bus 事件总线：单写入方（控制器）广播，多个观察者订阅。
//
// 发布为非阻塞：订阅者的 channel 满了就丢弃该订阅者的这条事件，
// 不允许慢观察者反压交易主循环。
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe 订阅事件，返回只读 channel 和取消函数
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish 广播事件（非阻塞）
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Debugf("订阅者 %d 缓冲已满，丢弃事件 %s", id, ev.Type)
		}
	}
}

// Close 关闭总线，关闭所有订阅 channel
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
