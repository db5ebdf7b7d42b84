package maker

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/makerbot/gomaker/internal/domain"
)

// Phase 控制环状态机的状态
type Phase string

const (
	PhaseStopped          Phase = "STOPPED"
	PhaseStarting         Phase = "STARTING"
	PhaseQuoting          Phase = "QUOTING"
	PhasePausedVolatility Phase = "PAUSED_VOLATILITY"
)

// Counters 累计计数，随进程持久化
type Counters struct {
	Placed   int64 `json:"placed"`
	Canceled int64 `json:"canceled"`
	Filled   int64 `json:"filled"`
}

// StateSnapshot 控制环状态的只读快照，供 dashboard/notifier 观察。
// 订单字段为副本，读取方不会看到后续变更。
type StateSnapshot struct {
	Phase               Phase
	Running             bool
	PausedForVolatility bool
	BuyOrder            *domain.Order
	SellOrder           *domain.Order
	Position            decimal.Decimal
	MarkPrice           decimal.Decimal
	Counters            Counters
	UpdatedAt           time.Time
}

// snapshotLocked 生成当前状态快照，调用方需持有 c.mu
func (c *Controller) snapshotLocked() StateSnapshot {
	s := StateSnapshot{
		Phase:               c.phase,
		Running:             c.phase != PhaseStopped,
		PausedForVolatility: c.phase == PhasePausedVolatility,
		Position:            c.position,
		MarkPrice:           c.lastMark,
		Counters:            c.counters,
		UpdatedAt:           time.Now(),
	}
	if c.buyOrder != nil {
		s.BuyOrder = c.buyOrder.Clone()
	}
	if c.sellOrder != nil {
		s.SellOrder = c.sellOrder.Clone()
	}
	return s
}

// GetState 返回当前状态快照
func (c *Controller) GetState() StateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}
