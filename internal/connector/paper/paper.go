package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/connector"
	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
)

// Connector 是内存撮合的模拟交易所：价格随机游走，
// 限价单在价格穿越时成交。用于离线试跑与测试。
type Connector struct {
	*runtime.Module
	runtime.NopHooks

	cfg    config.ConnectorConfig
	logger *zap.Logger

	mu      sync.Mutex
	prices  map[string]float64
	charts  map[market.ChartInfo]bool
	open    map[string]order.Single
	nextEid int
	rng     *rand.Rand
}

// New 构造模拟连接器。
func New(name string, cfg config.ConnectorConfig, logger *zap.Logger) *Connector {
	c := &Connector{
		Module: runtime.NewModule("connector", name, logger),
		cfg:    cfg,
		prices: make(map[string]float64),
		charts: make(map[market.ChartInfo]bool),
		open:   make(map[string]order.Single),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.logger = c.Module.Logger()
	c.Module.Init(c)
	return c
}

var _ connector.Connector = (*Connector)(nil)

// Exchange 返回配置中声明的交易所名。
func (c *Connector) Exchange() string {
	return c.cfg.Exchange
}

// OnRun 周期性推进模拟市场。
func (c *Connector) OnRun(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			c.tick(now.UTC())
		}
	}
}

// StartCandles 注册行情序列，下一个行情周期开始推送。
func (c *Connector) StartCandles(info market.ChartInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charts[info] = true
	c.ensurePriceLocked(info.Symbol)
}

// Submit 接受限价单并排队等待价格穿越。
// 数量或价格非法时当场拒绝，模拟交易所的参数校验。
func (c *Connector) Submit(ctx context.Context, single order.Single) (connector.Recipe, error) {
	if single.Quote <= 0 || single.Price <= 0 {
		return connector.Recipe{Status: order.StatusRejected}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensurePriceLocked(single.Symbol)
	c.nextEid++
	eid := fmt.Sprintf("paper-%d", c.nextEid)
	single.Eid = eid
	c.open[eid] = single

	return connector.Recipe{Eid: eid, Status: order.StatusSubmitted}, nil
}

// Cancel 撤掉排队中的订单，订单已不存在时同样返回撤销回执。
func (c *Connector) Cancel(ctx context.Context, single order.Single) (connector.Recipe, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.open, single.Eid)
	return connector.Recipe{Eid: single.Eid, Status: order.StatusCancelled}, nil
}

// tick 推进一个行情周期：更新价格、推送行情、撮合订单。
func (c *Connector) tick(now time.Time) {
	c.mu.Lock()

	for symbol, price := range c.prices {
		// 每个周期在±0.5%内随机游走。
		c.prices[symbol] = price * (1 + (c.rng.Float64()-0.5)/100)
	}

	type fill struct {
		uid string
		eid string
	}
	var fills []fill
	for eid, single := range c.open {
		price := c.prices[single.Symbol]
		if crossed(single, price) {
			delete(c.open, eid)
			fills = append(fills, fill{uid: single.Uid, eid: eid})
		}
	}

	type candlePush struct {
		info   market.ChartInfo
		candle market.Candle
	}
	var candlePushes []candlePush
	var tradePushes []connector.TradeEvent
	for info := range c.charts {
		price := c.prices[info.Symbol]
		candlePushes = append(candlePushes, candlePush{
			info: info,
			candle: market.Candle{
				Time:   now.Truncate(info.Interval.Duration()),
				Open:   price,
				High:   price,
				Low:    price,
				Close:  price,
				Volume: c.rng.Float64() * 10,
			},
		})
		tradePushes = append(tradePushes, connector.TradeEvent{
			Exchange: c.cfg.Exchange,
			Symbol:   info.Symbol,
			Price:    price,
		})
	}
	c.mu.Unlock()

	// 发射放在锁外，信箱阻塞不应卡住撮合状态。
	for _, push := range candlePushes {
		c.Emit(connector.CandleEvent{Info: push.info, Candle: push.candle})
	}
	for _, push := range tradePushes {
		c.Emit(push)
	}
	for _, f := range fills {
		c.Emit(connector.UserEvent{Uid: f.uid, Eid: f.eid, Status: order.StatusFilled})
	}
}

func (c *Connector) ensurePriceLocked(symbol string) {
	if _, ok := c.prices[symbol]; !ok {
		c.prices[symbol] = c.cfg.StartPrice
	}
}

// setPrice 直接设定价格，仅测试使用。
func (c *Connector) setPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

func crossed(single order.Single, price float64) bool {
	switch single.Command {
	case order.CommandBuy:
		return price <= single.Price
	case order.CommandSell:
		return price >= single.Price
	}
	return false
}
