package connector

import (
	"context"

	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
)

// Connector 把交易器接到一个交易所：向上发射行情与账户事件，
// 向下接受订单的提交与撤销。
type Connector interface {
	runtime.Component

	// Exchange 返回该连接器服务的交易所名，与订单文本中的名字匹配。
	Exchange() string
	// StartCandles 确保指定行情序列开始推送，重复调用无效果。
	StartCandles(info market.ChartInfo)
	// Submit 把订单提交到交易所。交易所明确拒绝时返回
	// Recipe{Status: StatusRejected} 而非错误，错误只表示网络层失败。
	Submit(ctx context.Context, single order.Single) (Recipe, error)
	// Cancel 撤销已提交的订单。
	Cancel(ctx context.Context, single order.Single) (Recipe, error)
}

// Recipe 是交易所对一次订单操作的回执。
type Recipe struct {
	Eid    string
	Status order.Status
}

// CandleEvent 表示一根新收盘或更新中的K线。
type CandleEvent struct {
	Info   market.ChartInfo
	Candle market.Candle
}

func (CandleEvent) EventName() string { return "candle" }

// TradeEvent 表示一笔最新成交价。
type TradeEvent struct {
	Exchange string
	Symbol   string
	Price    float64
}

func (TradeEvent) EventName() string { return "trade" }

// UserEvent 表示交易所侧的订单状态变化。
type UserEvent struct {
	Uid    string
	Eid    string
	Status order.Status
}

func (UserEvent) EventName() string { return "user" }
