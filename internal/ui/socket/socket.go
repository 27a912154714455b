package socket

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

// Ui 是 WebSocket 前端：每个连接是一个命令流，
// 每行命令的格式与命令行前端一致，状态更新广播给全部连接。
type Ui struct {
	*runtime.Module
	runtime.NopHooks

	cfg      config.UiConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	srv      *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
	last  ui.UpdateEvent
}

// New 构造 WebSocket 前端。
func New(name string, cfg config.UiConfig, logger *zap.Logger) *Ui {
	u := &Ui{
		Module: runtime.NewModule("ui", name, logger),
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]*sync.Mutex),
	}
	u.logger = u.Module.Logger()
	u.Module.Init(u)
	return u
}

// PreRun 准备 HTTP 服务。
func (u *Ui) PreRun(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", u.handleConn)
	u.srv = &http.Server{Addr: u.cfg.Listen, Handler: mux}
	return nil
}

// OnRun 运行 WebSocket 服务直到停止。
func (u *Ui) OnRun(ctx context.Context) error {
	u.logger.Info("WebSocket 前端已启动", zap.String("addr", u.cfg.Listen))
	if err := u.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("WebSocket 服务异常: %w", err)
	}
	return nil
}

// OnStop 关闭服务与全部连接。
func (u *Ui) OnStop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := u.srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		u.logger.Warn("关闭 WebSocket 服务失败", zap.Error(err))
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	for conn := range u.conns {
		_ = conn.Close()
	}
	u.conns = make(map[*websocket.Conn]*sync.Mutex)
	return nil
}

func (u *Ui) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.logger.Warn("升级 WebSocket 连接失败", zap.Error(err))
		return
	}

	writeMu := &sync.Mutex{}
	u.mu.Lock()
	u.conns[conn] = writeMu
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		delete(u.conns, conn)
		u.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		for _, line := range strings.Split(string(payload), "\n") {
			u.handleLine(conn, writeMu, line)
		}
	}
}

func (u *Ui) handleLine(conn *websocket.Conn, writeMu *sync.Mutex, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	event, err := ui.ParseLine(line)
	if err != nil {
		u.write(conn, writeMu, fmt.Sprintf("错误: %v", err))
		return
	}

	if _, ok := event.(ui.ShowEvent); ok {
		u.mu.Lock()
		last := u.last
		u.mu.Unlock()
		u.write(conn, writeMu, render(last))
		return
	}

	u.Emit(event)
}

// OnEvent 把状态更新广播给全部连接。
func (u *Ui) OnEvent(ctx context.Context, event runtime.Event) {
	update, ok := event.(ui.UpdateEvent)
	if !ok {
		return
	}

	u.mu.Lock()
	u.last = update
	conns := make(map[*websocket.Conn]*sync.Mutex, len(u.conns))
	for conn, writeMu := range u.conns {
		conns[conn] = writeMu
	}
	u.mu.Unlock()

	text := render(update)
	for conn, writeMu := range conns {
		u.write(conn, writeMu, text)
	}
}

func (u *Ui) write(conn *websocket.Conn, writeMu *sync.Mutex, text string) {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		u.logger.Warn("写入 WebSocket 连接失败", zap.Error(err))
	}
}

func render(update ui.UpdateEvent) string {
	var b strings.Builder
	if update.Order == nil {
		b.WriteString("订单: empty")
	} else {
		b.WriteString("订单: ")
		b.WriteString(update.Order.Describe())
	}
	for _, ticker := range update.Market.Tickers {
		b.WriteString(fmt.Sprintf("\n行情: %s %s = %g", ticker.Exchange, ticker.Symbol, ticker.Price))
	}
	return b.String()
}
