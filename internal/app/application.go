package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/injector"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

// Application 是模块树的根，只负责承载会话。
type Application struct {
	*runtime.Module
	runtime.NopHooks

	logger *zap.Logger
	inj    *injector.Injector
}

// NewApplication 构造应用根模块。
func NewApplication(name string, inj *injector.Injector, logger *zap.Logger) *Application {
	a := &Application{
		Module: runtime.NewModule("application", name, logger),
		inj:    inj,
	}
	a.logger = a.Module.Logger()
	a.Module.Init(a)
	return a
}

var _ runtime.Component = (*Application)(nil)

// Attach 挂载一个会话。
func (a *Application) Attach(child runtime.Component) error {
	if child.Base().Category() != "session" {
		return fmt.Errorf("应用只能挂载会话, 收到 %s", child.Base().Category())
	}
	a.AddSubmodule(child)
	return nil
}

// OnEvent 处理会话转发上来的拓扑命令。
func (a *Application) OnEvent(ctx context.Context, event runtime.Event) {
	add, ok := event.(ui.AddSessionEvent)
	if !ok {
		return
	}
	if a.inj == nil {
		a.logger.Warn("运行期挂载不可用", zap.String("session", add.Name))
		return
	}

	child, err := a.inj.Inject("session", add.Name)
	if err != nil {
		a.logger.Warn("挂载会话失败", zap.Error(err))
		return
	}
	if err := a.Attach(child); err != nil {
		a.logger.Warn("挂载会话失败", zap.Error(err))
	}
}
