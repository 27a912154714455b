package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	goruntime "runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

type catchHooks struct {
	runtime.NopHooks
	events chan runtime.Event
}

func (h *catchHooks) OnEvent(ctx context.Context, event runtime.Event) {
	h.events <- event
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func harness(t *testing.T, in io.Reader) (*Ui, *safeBuffer, chan runtime.Event) {
	t.Helper()

	out := &safeBuffer{}
	u := newWithStreams("cli", in, out, nil)

	hooks := &catchHooks{events: make(chan runtime.Event, 16)}
	parent := runtime.NewModule("session", "test", nil)
	parent.Init(hooks)
	parent.AddSubmodule(u)

	done := make(chan error, 1)
	go func() { done <- parent.Run(context.Background()) }()
	t.Cleanup(func() {
		parent.Stop()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("parent exited with error: %v", err)
		}
	})

	return u, out, hooks.events
}

func TestCli_EmitsParsedCommands(t *testing.T) {
	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })
	_, _, events := harness(t, reader)

	go func() {
		_, _ = io.WriteString(writer, "parallel: buy 5 BTCUSDT in Binance at 20000\n")
	}()

	select {
	case event := <-events:
		add, ok := event.(ui.AddOrderEvent)
		if !ok {
			t.Fatalf("expected AddOrderEvent, got %T", event)
		}
		if add.Mode != order.ModeParallel {
			t.Errorf("unexpected mode: %s", add.Mode)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("command event did not arrive")
	}
}

func TestCli_ReportsParseErrors(t *testing.T) {
	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })
	_, out, _ := harness(t, reader)

	go func() {
		_, _ = io.WriteString(writer, "launch: rockets\n")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), "错误") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("error message was not printed, output: %q", out.String())
}

func TestCli_ReaderExitsWithModule(t *testing.T) {
	base := goruntime.NumGoroutine()

	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })
	out := &safeBuffer{}
	u := newWithStreams("cli", reader, out, nil)

	done := make(chan error, 1)
	go func() { done <- u.Run(context.Background()) }()

	// 管道写入在被读取前阻塞，写入返回即说明读循环已启动。
	if _, err := io.WriteString(writer, "show\n"); err != nil {
		t.Fatalf("write to pipe failed: %v", err)
	}

	u.Stop()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("module exited with error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("module did not exit")
	}

	// 再写一行把阻塞在 Read 上的读协程唤醒，它应当就此退出。
	go func() { _, _ = io.WriteString(writer, "show\n") }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if goruntime.NumGoroutine() <= base {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("reader goroutine did not exit, %d goroutines remain (baseline %d)",
		goruntime.NumGoroutine(), base)
}

func TestCli_RendersUpdates(t *testing.T) {
	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })
	u, out, _ := harness(t, reader)

	parsed, err := order.Parse("buy 5 BTCUSDT in Binance at 20000")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	snapshot := market.Market{}.AddTrade("Binance", "BTCUSDT", 20123, 1, time.Now().UTC())
	u.Deliver(ui.UpdateEvent{Order: parsed, Market: snapshot})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		text := out.String()
		if strings.Contains(text, "BTCUSDT") && strings.Contains(text, "20123") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("update was not rendered, output: %q", out.String())
}
