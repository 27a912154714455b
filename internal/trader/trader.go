package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/connector"
	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/monitor"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/store"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

// seedLimit 是新订阅行情时从本地缓存回填的K线数量。
const seedLimit = 500

// ErrorEvent 表示一次无法自动恢复的订单操作失败。
type ErrorEvent struct {
	Order order.Single
	Err   error
}

func (ErrorEvent) EventName() string { return "error" }

// Trader 维护订单树与行情快照：行情或订单树每次变化后做一轮推进，
// 提交到期且条件满足的新订单，撤销被标记的已提交订单。
// 所有状态只在事件协程里修改，连接器则可以随时挂载。
type Trader struct {
	*runtime.Module
	runtime.NopHooks

	logger  *zap.Logger
	store   *store.Store
	metrics *monitor.Metrics

	orders order.Order
	market market.Market

	mu         sync.Mutex
	connectors []connector.Connector
}

// New 构造交易器。store 与 metrics 可为空。
func New(name string, st *store.Store, metrics *monitor.Metrics, logger *zap.Logger) *Trader {
	t := &Trader{
		Module:  runtime.NewModule("trader", name, logger),
		store:   st,
		metrics: metrics,
		orders:  order.Empty{},
	}
	t.logger = t.Module.Logger()
	t.Module.Init(t)
	return t
}

var _ runtime.Component = (*Trader)(nil)

// Attach 挂载一个连接器，其他组件不能挂到交易器下。
func (t *Trader) Attach(child runtime.Component) error {
	conn, ok := child.(connector.Connector)
	if !ok {
		return fmt.Errorf("交易器只能挂载连接器, 收到 %s", child.Base().Category())
	}

	t.mu.Lock()
	t.connectors = append(t.connectors, conn)
	t.mu.Unlock()

	t.AddSubmodule(child)
	return nil
}

// OnEvent 处理前端命令与连接器推送。
func (t *Trader) OnEvent(ctx context.Context, event runtime.Event) {
	if t.metrics != nil {
		t.metrics.RecordEvent(event.EventName())
	}

	switch e := event.(type) {
	case ui.AddOrderEvent:
		t.orders = t.orders.Add(e.Order, e.Mode)
		t.ensureRequirements(ctx, e.Order)
		t.update(ctx)
		t.emitUpdate()

	case ui.CancelOrderEvent:
		t.orders = t.orders.Cancel(e.Uid)
		t.update(ctx)
		t.emitUpdate()

	case connector.CandleEvent:
		t.market = t.market.AddCandle(e.Info.Exchange, e.Info.Symbol, e.Info.Interval, e.Candle)
		if t.metrics != nil {
			t.metrics.RecordCandle(e.Info.Exchange)
		}
		t.update(ctx)

	case connector.TradeEvent:
		t.market = t.market.AddTrade(e.Exchange, e.Symbol, e.Price, 0, time.Now().UTC())
		t.update(ctx)
		t.emitUpdate()

	case connector.UserEvent:
		t.orders = t.orders.UpdateStatus(e.Uid, e.Eid, e.Status)
		if t.metrics != nil {
			t.metrics.RecordOrderStatus(e.Status)
		}
		t.update(ctx)
		t.emitUpdate()
	}
}

// ensureRequirements 为新订单需要的每条行情序列开启推送，
// 并用本地缓存先把序列回填起来。
func (t *Trader) ensureRequirements(ctx context.Context, ord order.Order) {
	for _, req := range ord.Requirements() {
		conn := t.connectorFor(req.Info.Exchange)
		if conn == nil {
			t.logger.Warn("订单引用了未挂载的交易所", zap.String("exchange", req.Info.Exchange))
			continue
		}

		if t.store != nil {
			candles, err := t.store.LoadCandles(ctx, req.Info, seedLimit)
			if err != nil {
				t.logger.Warn("回填本地K线失败", zap.Error(err))
			}
			for _, candle := range candles {
				t.market = t.market.AddCandle(req.Info.Exchange, req.Info.Symbol, req.Info.Interval, candle)
			}
		}

		conn.StartCandles(req.Info)
	}
}

// update 推进订单树一轮。只看当前可见的待处理叶子，
// SEQUENT 的后续步骤要等前面的步骤终结后才会出现在这里。
func (t *Trader) update(ctx context.Context) {
	for _, single := range t.orders.Get(true) {
		switch {
		case single.Status == order.StatusNew:
			t.trySubmit(ctx, single)
		case single.Status == order.StatusSubmitted && single.ToCancel:
			t.tryCancel(ctx, single)
		}
	}
}

func (t *Trader) trySubmit(ctx context.Context, single order.Single) {
	if single.Time.After(time.Now().UTC()) {
		return
	}
	if !t.conditionsMet(single) {
		return
	}

	conn := t.connectorFor(single.Exchange)
	if conn == nil {
		return
	}

	recipe, err := conn.Submit(ctx, single)
	if err != nil {
		// 网络层失败留在 NEW 状态，下一轮行情到来时重试。
		t.logger.Warn("提交订单失败", zap.String("uid", single.Uid), zap.Error(err))
		t.Emit(ErrorEvent{Order: single, Err: err})
		return
	}

	if recipe.Eid != "" {
		t.orders = t.orders.SetEid(single.Uid, recipe.Eid)
	}
	t.orders = t.orders.UpdateStatus(single.Uid, "", recipe.Status)
	if t.metrics != nil {
		t.metrics.RecordOrderStatus(recipe.Status)
	}

	t.logger.Info("订单已提交",
		zap.String("uid", single.Uid),
		zap.String("eid", recipe.Eid),
		zap.String("status", string(recipe.Status)),
	)
}

func (t *Trader) tryCancel(ctx context.Context, single order.Single) {
	conn := t.connectorFor(single.Exchange)
	if conn == nil {
		return
	}

	recipe, err := conn.Cancel(ctx, single)
	if err != nil {
		t.logger.Warn("撤销订单失败", zap.String("uid", single.Uid), zap.Error(err))
		t.Emit(ErrorEvent{Order: single, Err: err})
		return
	}

	t.orders = t.orders.UpdateStatus(single.Uid, "", recipe.Status)
	if t.metrics != nil {
		t.metrics.RecordOrderStatus(recipe.Status)
	}
}

// conditionsMet 判断订单的全部指标条件在当前行情下是否成立。
func (t *Trader) conditionsMet(single order.Single) bool {
	for _, condition := range single.Conditions {
		info := market.ChartInfo{
			Exchange: single.Exchange,
			Symbol:   single.Symbol,
			Interval: condition.Interval,
		}
		if !condition.Check(t.market.Candles(info)) {
			return false
		}
	}
	return true
}

func (t *Trader) connectorFor(exchange string) connector.Connector {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, conn := range t.connectors {
		if conn.Exchange() == exchange {
			return conn
		}
	}
	return nil
}

func (t *Trader) emitUpdate() {
	t.Emit(ui.UpdateEvent{Order: t.orders, Market: t.market})
}
