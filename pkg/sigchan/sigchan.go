package sigchan

// Chan 是一个合并信号的非阻塞 channel。
//
// 行情更新这类触发源只关心"有没有新东西"，不关心发生了几次：
// channel 已有未消费信号时再次 Emit 直接丢弃，消费方醒来后
// 自行读取最新状态。
type Chan struct {
	c chan struct{}
}

// New 创建信号 channel。bufferSize 通常为 1（合并突发触发）。
func New(bufferSize int) *Chan {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号（非阻塞，已满则丢弃）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}
