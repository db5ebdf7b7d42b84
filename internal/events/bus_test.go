package events

import (
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(8)
	defer cancel()

	b.Publish(Event{Type: TypeStarted, Timestamp: time.Now()})

	select {
	case ev := <-ch:
		if ev.Type != TypeStarted {
			t.Fatalf("事件类型错误: %s", ev.Type)
		}
	default:
		t.Fatal("应收到事件")
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(Event{Type: TypeStarted})
	b.Publish(Event{Type: TypeStopped}) // 缓冲满，应被丢弃

	if ev := <-ch; ev.Type != TypeStarted {
		t.Fatalf("第一条事件错误: %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("第二条事件应被丢弃, 实际收到 %s", ev.Type)
	default:
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(8)
	cancel()

	b.Publish(Event{Type: TypeStarted})

	// cancel 后 channel 被关闭且不再接收
	if _, ok := <-ch; ok {
		t.Fatal("取消后 channel 应关闭")
	}
}

func TestBusClose(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe(8)
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("Close 后订阅 channel 应关闭")
	}
	// Close 后订阅立即得到已关闭的 channel
	ch2, _ := b.Subscribe(8)
	if _, ok := <-ch2; ok {
		t.Fatal("Close 后的新订阅应立即关闭")
	}
	// Publish 不应 panic
	b.Publish(Event{Type: TypeStarted})
}
