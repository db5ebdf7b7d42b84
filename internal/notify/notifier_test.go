package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/events"
)

func TestNotifierSendsSelectedEvents(t *testing.T) {
	var mu sync.Mutex
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		received = append(received, body["content"])
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(srv.URL)
	ch := make(chan events.Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx, ch)
		close(done)
	}()

	ch <- events.Event{Type: events.TypeTradeExecuted, Timestamp: time.Now(), Side: "buy", Quantity: decimal.RequireFromString("0.01")}
	ch <- events.Event{Type: events.TypeOrderReplaced, Timestamp: time.Now()} // 应被过滤
	ch <- events.Event{Type: events.TypeFatal, Timestamp: time.Now(), Reason: "test"}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		count := len(received)
		mu.Unlock()
		if count >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("应收到 2 条推送, 实际 %d", count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("order_replaced 应被过滤, 实际收到 %d 条", len(received))
	}
	if !strings.Contains(received[0], "订单成交") {
		t.Fatalf("第一条推送内容错误: %s", received[0])
	}
	if !strings.Contains(received[1], "致命错误") {
		t.Fatalf("第二条推送内容错误: %s", received[1])
	}
}

func TestFormatEvent(t *testing.T) {
	ev := events.Event{Type: events.TypeVolatilityPaused, Timestamp: time.Now()}
	if !strings.Contains(formatEvent(ev), "暂停报价") {
		t.Fatal("波动暂停事件格式错误")
	}
}
