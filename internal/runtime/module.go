package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Hooks 是模块的行为接口。Module 负责事件流与生命周期编排，
// 业务逻辑通过钩子注入：
//
//	PreRun  在任何任务启动前做准备，失败会中止整个启动。
//	OnRun   是模块的主动任务，随调度器并发运行。
//	OnEvent 处理信箱中的每个事件，单协程顺序调用。
//	OnStop  在子模块全部停止后、监听结束前做收尾。
//	PostRun 在调度器完全退出后释放资源。
type Hooks interface {
	PreRun(ctx context.Context) error
	OnRun(ctx context.Context) error
	OnEvent(ctx context.Context, event Event)
	OnStop(ctx context.Context) error
	PostRun(ctx context.Context) error
}

// NopHooks 提供全部钩子的空实现，业务模块内嵌后只覆盖需要的钩子。
type NopHooks struct{}

func (NopHooks) PreRun(ctx context.Context) error         { return nil }
func (NopHooks) OnRun(ctx context.Context) error          { return nil }
func (NopHooks) OnEvent(ctx context.Context, event Event) {}
func (NopHooks) OnStop(ctx context.Context) error         { return nil }
func (NopHooks) PostRun(ctx context.Context) error        { return nil }

var _ Hooks = NopHooks{}

// Component 是可挂入模块树的节点。业务模块内嵌 *Module 并实现 Base。
type Component interface {
	Base() *Module
}

// Module 是模块树的一个节点：持有事件信箱、向上的事件发射器、
// 任务调度器和子模块列表。事件沿树向上冒泡（子模块 Emit，父模块
// OnEvent），向下通过 Deliver 写入目标模块的信箱。
type Module struct {
	category string
	name     string
	logger   *zap.Logger

	hooks     Hooks
	emitter   *EventEmitter
	listener  *EventListener
	scheduler *Scheduler

	mu         sync.Mutex
	submodules []Component
	started    bool
	cancel     context.CancelFunc

	stopOnce sync.Once
	finished chan struct{}
}

// NewModule 创建未初始化的模块，随后必须调用 Init 注入钩子。
func NewModule(category, name string, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		category:  category,
		name:      name,
		logger:    logger.With(zap.String("module", category), zap.String("name", name)),
		emitter:   NewEventEmitter(),
		listener:  NewEventListener(),
		scheduler: NewScheduler(),
		finished:  make(chan struct{}),
	}
}

func (m *Module) Category() string    { return m.category }
func (m *Module) Name() string        { return m.name }
func (m *Module) Logger() *zap.Logger { return m.logger }
func (m *Module) Base() *Module       { return m }

// Init 注入行为钩子并注册监听与主任务。
func (m *Module) Init(hooks Hooks) {
	m.hooks = hooks

	m.scheduler.Schedule(func(ctx context.Context) error {
		return m.listener.Listen(ctx, func(event Event) {
			m.hooks.OnEvent(ctx, event)
		})
	})
	m.scheduler.Schedule(m.hooks.OnRun)
}

// AddSubmodule 挂载子模块：子模块向上发射的事件进入本模块信箱，
// 子模块的生命周期由本模块的调度器驱动。运行中也可以挂载。
// 子模块被主动停止时的取消错误不向上传播。
func (m *Module) AddSubmodule(child Component) {
	base := child.Base()
	base.emitter.Subscribe(m.listener)

	m.mu.Lock()
	m.submodules = append(m.submodules, child)
	m.mu.Unlock()

	m.scheduler.Schedule(func(ctx context.Context) error {
		err := base.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// Submodules 返回当前子模块列表的快照。
func (m *Module) Submodules() []Component {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Component, len(m.submodules))
	copy(out, m.submodules)
	return out
}

// Emit 向上发射事件，由挂载本模块的父模块处理。
func (m *Module) Emit(event Event) {
	m.emitter.Emit(event)
}

// Deliver 把事件写入本模块自己的信箱，父模块用它向下派发命令。
func (m *Module) Deliver(event Event) {
	m.listener.Deliver(event)
}

// Schedule 在本模块的调度器上追加任务，供钩子启动长期子任务。
func (m *Module) Schedule(task Task) {
	m.scheduler.Schedule(task)
}

// Run 运行模块直到 Stop 被调用或某个任务出错。
// 主动停止时返回 context.Canceled，调用方应视为正常退出。
func (m *Module) Run(ctx context.Context) error {
	if m.hooks == nil {
		return fmt.Errorf("模块未初始化: %s/%s", m.category, m.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.started = true
	m.mu.Unlock()
	defer close(m.finished)
	defer cancel()

	m.logger.Info("模块启动")

	if err := m.hooks.PreRun(runCtx); err != nil {
		return fmt.Errorf("模块准备失败: %w", err)
	}

	err := m.scheduler.Run(runCtx)
	err = multierr.Append(err, m.hooks.PostRun(context.Background()))

	m.logger.Info("模块退出")
	return err
}

// Stop 按深度优先顺序停止整棵子树：先停全部子模块并等待其退出，
// 再执行本模块收尾，最后结束监听并取消运行上下文。重复调用无效果。
func (m *Module) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		submodules := make([]Component, len(m.submodules))
		copy(submodules, m.submodules)
		cancel := m.cancel
		m.mu.Unlock()

		for _, child := range submodules {
			base := child.Base()
			base.Stop()
			if base.running() {
				<-base.finished
			}
		}

		if m.hooks != nil {
			if err := m.hooks.OnStop(context.Background()); err != nil {
				m.logger.Warn("模块收尾出错", zap.Error(err))
			}
		}

		m.listener.Deliver(StopEvent{})
		if cancel != nil {
			cancel()
		}
	})
}

// Done 在模块完全退出后关闭。
func (m *Module) Done() <-chan struct{} {
	return m.finished
}

func (m *Module) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
