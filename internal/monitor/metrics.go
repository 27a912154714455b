package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/order"
)

// Metrics 汇总运行指标并通过 HTTP 暴露给 Prometheus 抓取。
type Metrics struct {
	registry *prometheus.Registry

	ordersSubmitted prometheus.Counter
	ordersFilled    prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRejected  prometheus.Counter
	events          *prometheus.CounterVec
	candles         *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		ordersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cihatbot", Name: "orders_submitted_total", Help: "已提交到交易所的订单数。",
		}),
		ordersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cihatbot", Name: "orders_filled_total", Help: "已成交的订单数。",
		}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cihatbot", Name: "orders_cancelled_total", Help: "已取消的订单数。",
		}),
		ordersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cihatbot", Name: "orders_rejected_total", Help: "被交易所拒绝的订单数。",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cihatbot", Name: "events_total", Help: "按类型统计的模块事件数。",
		}, []string{"event"}),
		candles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cihatbot", Name: "candles_total", Help: "按交易所统计的K线数。",
		}, []string{"exchange"}),
	}

	registry.MustRegister(
		m.ordersSubmitted, m.ordersFilled, m.ordersCancelled, m.ordersRejected,
		m.events, m.candles,
	)
	return m
}

// RecordOrderStatus 记录订单的一次状态迁移。
func (m *Metrics) RecordOrderStatus(status order.Status) {
	switch status {
	case order.StatusSubmitted:
		m.ordersSubmitted.Inc()
	case order.StatusFilled:
		m.ordersFilled.Inc()
	case order.StatusCancelled:
		m.ordersCancelled.Inc()
	case order.StatusRejected:
		m.ordersRejected.Inc()
	}
}

// RecordEvent 记录一次模块事件。
func (m *Metrics) RecordEvent(name string) {
	m.events.WithLabelValues(name).Inc()
}

// RecordCandle 记录一根收到的K线。
func (m *Metrics) RecordCandle(exchange string) {
	m.candles.WithLabelValues(exchange).Inc()
}

// Serve 在指定端口暴露 /metrics，上下文取消时优雅关闭。
func (m *Metrics) Serve(ctx context.Context, port int, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭指标服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("指标服务异常", zap.Error(err))
		}
	}()

	logger.Info("指标接口已启动", zap.String("addr", addr))
}
