// Package dashboard 终端面板，实时展示控制环状态与最近事件
package dashboard

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/gomaker/internal/events"
	"github.com/makerbot/gomaker/internal/maker"
)

var log = logrus.WithField("component", "dashboard")

// Dashboard 包一层 bubbletea 程序的生命周期管理
type Dashboard struct {
	program *tea.Program
}

// New 创建面板。stateFn 每次 tick 拉取状态快照，eventCh 提供事件流。
func New(stateFn func() maker.StateSnapshot, eventCh <-chan events.Event) *Dashboard {
	m := newModel(stateFn, eventCh)
	return &Dashboard{
		program: tea.NewProgram(m, tea.WithAltScreen()),
	}
}

// Run 阻塞运行面板直到退出；ctx 结束时主动关闭
func (d *Dashboard) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		d.program.Quit()
	}()
	if _, err := d.program.Run(); err != nil {
		log.Errorf("面板退出异常: %v", err)
		return err
	}
	return nil
}
