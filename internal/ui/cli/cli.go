package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

// Ui 是标准输入输出上的行式前端。
type Ui struct {
	*runtime.Module
	runtime.NopHooks

	logger *zap.Logger
	in     io.Reader
	out    io.Writer

	mu   sync.Mutex
	last ui.UpdateEvent
}

// New 构造命令行前端。
func New(name string, logger *zap.Logger) *Ui {
	return newWithStreams(name, os.Stdin, os.Stdout, logger)
}

func newWithStreams(name string, in io.Reader, out io.Writer, logger *zap.Logger) *Ui {
	u := &Ui{
		Module: runtime.NewModule("ui", name, logger),
		in:     in,
		out:    out,
	}
	u.logger = u.Module.Logger()
	u.Module.Init(u)
	return u
}

// OnRun 逐行读取输入并把命令编译成事件向上发射。
func (u *Ui) OnRun(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(u.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				// 消费循环已退出，不能再往通道里写。
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// 输入流结束后保持运行，订单推进仍需要展示。
				<-ctx.Done()
				return ctx.Err()
			}
			u.handleLine(line)
		}
	}
}

func (u *Ui) handleLine(line string) {
	if line == "" {
		return
	}

	event, err := ui.ParseLine(line)
	if err != nil {
		fmt.Fprintf(u.out, "错误: %v\n", err)
		return
	}

	if _, ok := event.(ui.ShowEvent); ok {
		u.render()
		return
	}

	u.Emit(event)
}

// OnEvent 接收会话推下来的状态更新并立即渲染。
func (u *Ui) OnEvent(ctx context.Context, event runtime.Event) {
	update, ok := event.(ui.UpdateEvent)
	if !ok {
		return
	}

	u.mu.Lock()
	u.last = update
	u.mu.Unlock()
	u.render()
}

func (u *Ui) render() {
	u.mu.Lock()
	update := u.last
	u.mu.Unlock()

	if update.Order == nil {
		fmt.Fprintln(u.out, "订单: empty")
		return
	}

	fmt.Fprintf(u.out, "订单: %s\n", update.Order.Describe())
	for _, ticker := range update.Market.Tickers {
		fmt.Fprintf(u.out, "行情: %s %s = %s\n", ticker.Exchange, ticker.Symbol, formatPrice(ticker.Price))
	}
}

func formatPrice(price float64) string {
	return fmt.Sprintf("%g", price)
}
