package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task 是调度器管理的一个长期任务。
type Task func(ctx context.Context) error

// Scheduler 管理一组并发任务：启动前注册的任务在 Run 时一起拉起，
// 启动后注册的任务立即加入运行中的任务组。任何任务出错都会
// 取消共享上下文并最终由 Run 返回该错误。
type Scheduler struct {
	mu      sync.Mutex
	group   *errgroup.Group
	ctx     context.Context
	pending []Task
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule 注册一个任务。调度器尚未运行时任务排队等待 Run，
// 已运行时任务立即启动。
func (s *Scheduler) Schedule(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group == nil {
		s.pending = append(s.pending, task)
		return
	}

	group, ctx := s.group, s.ctx
	group.Go(func() error { return task(ctx) })
}

// Run 启动全部排队任务并等待所有任务结束，返回第一个任务错误。
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	group, groupCtx := errgroup.WithContext(ctx)
	s.group = group
	s.ctx = groupCtx
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, task := range pending {
		task := task
		group.Go(func() error { return task(groupCtx) })
	}

	return group.Wait()
}
