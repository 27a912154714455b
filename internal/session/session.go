package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/injector"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/trader"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

// Session 把若干前端与若干交易器接在一起：前端命令下发给交易器，
// 交易器的状态更新回流给前端。会话本身不碰订单语义。
type Session struct {
	*runtime.Module
	runtime.NopHooks

	logger *zap.Logger
	inj    *injector.Injector
}

// New 构造会话。inj 用于运行期挂载新模块，可为空。
func New(name string, inj *injector.Injector, logger *zap.Logger) *Session {
	s := &Session{
		Module: runtime.NewModule("session", name, logger),
		inj:    inj,
	}
	s.logger = s.Module.Logger()
	s.Module.Init(s)
	return s
}

var _ runtime.Component = (*Session)(nil)

// Attach 挂载交易器或前端。
func (s *Session) Attach(child runtime.Component) error {
	switch child.Base().Category() {
	case "trader", "ui":
		s.AddSubmodule(child)
		return nil
	}
	return fmt.Errorf("会话只能挂载交易器或前端, 收到 %s", child.Base().Category())
}

// OnEvent 在前端与交易器之间路由事件。
func (s *Session) OnEvent(ctx context.Context, event runtime.Event) {
	switch e := event.(type) {
	case ui.AddOrderEvent, ui.CancelOrderEvent:
		s.deliverTo("trader", event)

	case ui.UpdateEvent:
		s.deliverTo("ui", event)

	case trader.ErrorEvent:
		s.logger.Warn("交易器报告订单错误",
			zap.String("uid", e.Order.Uid),
			zap.Error(e.Err),
		)

	case ui.AddTraderEvent:
		s.attachNew("trader", e.Name)

	case ui.AddConnectorEvent:
		s.attachConnector(e)

	case ui.AddSessionEvent:
		// 会话的挂载由应用处理。
		s.Emit(e)
	}
}

func (s *Session) deliverTo(category string, event runtime.Event) {
	for _, sub := range s.Submodules() {
		if sub.Base().Category() == category {
			sub.Base().Deliver(event)
		}
	}
}

func (s *Session) attachNew(category, name string) {
	if s.inj == nil {
		s.logger.Warn("运行期挂载不可用", zap.String("category", category), zap.String("name", name))
		return
	}

	child, err := s.inj.Inject(category, name)
	if err != nil {
		s.logger.Warn("挂载模块失败", zap.Error(err))
		return
	}
	if err := s.Attach(child); err != nil {
		s.logger.Warn("挂载模块失败", zap.Error(err))
	}
}

func (s *Session) attachConnector(e ui.AddConnectorEvent) {
	if s.inj == nil {
		s.logger.Warn("运行期挂载不可用", zap.String("connector", e.ConnectorName))
		return
	}

	var target injector.Attacher
	for _, sub := range s.Submodules() {
		if sub.Base().Category() == "trader" && sub.Base().Name() == e.TraderName {
			if attacher, ok := sub.(injector.Attacher); ok {
				target = attacher
			}
			break
		}
	}
	if target == nil {
		s.logger.Warn("找不到目标交易器", zap.String("trader", e.TraderName))
		return
	}

	child, err := s.inj.Inject("connector", e.ConnectorName)
	if err != nil {
		s.logger.Warn("挂载连接器失败", zap.Error(err))
		return
	}
	if err := target.Attach(child); err != nil {
		s.logger.Warn("挂载连接器失败", zap.Error(err))
	}
}
