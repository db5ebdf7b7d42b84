// Package notify 把控制环事件推送到 webhook（如值班群机器人）
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/gomaker/internal/events"
)

var log = logrus.WithField("component", "notify")

// Notifier 消费事件总线并推送 webhook 消息。
// 推送失败只记日志，绝不影响交易路径。
type Notifier struct {
	url    string
	client *resty.Client
}

func New(webhookURL string) *Notifier {
	return &Notifier{
		url: webhookURL,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
	}
}

// Run 持续消费事件直到 ctx 结束或通道关闭
func (n *Notifier) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !n.shouldSend(ev.Type) {
				continue
			}
			n.send(ctx, ev)
		}
	}
}

// shouldSend 只推送运维需要关注的事件，常规撤改不打扰
func (n *Notifier) shouldSend(t events.Type) bool {
	switch t {
	case events.TypeStarted, events.TypeStopped,
		events.TypeTradeExecuted, events.TypePositionUpdated,
		events.TypeVolatilityPaused, events.TypeVolatilityResumed,
		events.TypeMaxReconnectReached, events.TypeFatal:
		return true
	}
	return false
}

func (n *Notifier) send(ctx context.Context, ev events.Event) {
	payload := map[string]string{
		"content": formatEvent(ev),
	}
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		log.Warnf("推送事件 %s 失败: %v", ev.Type, err)
		return
	}
	if resp.IsError() {
		log.Warnf("推送事件 %s 返回 %d", ev.Type, resp.StatusCode())
	}
}

func formatEvent(ev events.Event) string {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case events.TypeTradeExecuted:
		return fmt.Sprintf("[%s] 订单成交: %s %s", ts, ev.Side, ev.Quantity)
	case events.TypePositionUpdated:
		return fmt.Sprintf("[%s] 持仓更新: %s", ts, ev.Quantity)
	case events.TypeFatal:
		return fmt.Sprintf("[%s] 致命错误，控制环已停: %s", ts, ev.Reason)
	case events.TypeMaxReconnectReached:
		return fmt.Sprintf("[%s] 行情流重连次数耗尽", ts)
	case events.TypeVolatilityPaused:
		return fmt.Sprintf("[%s] 波动过大，暂停报价", ts)
	case events.TypeVolatilityResumed:
		return fmt.Sprintf("[%s] 波动回落，恢复报价", ts)
	default:
		return fmt.Sprintf("[%s] %s", ts, ev.Type)
	}
}
