package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/connector"
	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/store"
)

// venue 封装实际的交易所调用，测试用替身实现。
type venue interface {
	loadMarkets() error
	createOrder(symbol, orderType, side string, amount, price float64, params map[string]interface{}) (ccxt.Order, error)
	cancelOrder(eid, symbol string, params map[string]interface{}) error
	fetchOrder(eid, symbol string) (ccxt.Order, error)
	fetchOHLCV(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error)
}

// Connector 通过 ccxt 对接币安现货：轮询K线与订单状态，
// 把提交与撤销转成交易所调用。
type Connector struct {
	*runtime.Module
	runtime.NopHooks

	cfg    config.ConnectorConfig
	logger *zap.Logger
	venue  venue
	store  *store.Store

	mu            sync.Mutex
	marketsLoaded bool
	charts        map[market.ChartInfo]bool
	tracked       map[string]trackedOrder
}

type trackedOrder struct {
	uid    string
	symbol string
	status order.Status
}

// New 构造币安连接器。store 可为空，为空时K线不落盘。
func New(name string, cfg config.ConnectorConfig, st *store.Store, logger *zap.Logger) *Connector {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
		},
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	c := &Connector{
		Module:  runtime.NewModule("connector", name, logger),
		cfg:     cfg,
		venue:   &ccxtVenue{exchange: ex},
		store:   st,
		charts:  make(map[market.ChartInfo]bool),
		tracked: make(map[string]trackedOrder),
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

// OnRun 轮询已提交订单的状态，变化时向上发射 UserEvent。
func (c *Connector) OnRun(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.pollOrders(ctx)
		}
	}
}

func (c *Connector) pollOrders(ctx context.Context) {
	c.mu.Lock()
	snapshot := make(map[string]trackedOrder, len(c.tracked))
	for eid, tracked := range c.tracked {
		snapshot[eid] = tracked
	}
	c.mu.Unlock()

	for eid, tracked := range snapshot {
		var fetched ccxt.Order
		err := c.callWithRetry(ctx, "fetch_order", func() error {
			result, err := c.venue.fetchOrder(eid, tracked.symbol)
			if err != nil {
				return err
			}
			fetched = result
			return nil
		})
		if err != nil {
			c.logger.Warn("查询订单状态失败", zap.String("eid", eid), zap.Error(err))
			continue
		}

		status := statusFromCcxt(fetched.Status)
		if status == "" || status == tracked.status {
			continue
		}

		c.mu.Lock()
		if status.Terminal() {
			delete(c.tracked, eid)
		} else {
			c.tracked[eid] = trackedOrder{uid: tracked.uid, symbol: tracked.symbol, status: status}
		}
		c.mu.Unlock()

		c.Emit(connector.UserEvent{Uid: tracked.uid, Eid: eid, Status: status})
	}
}

// StartCandles 为行情序列启动轮询任务，重复的序列被忽略。
func (c *Connector) StartCandles(info market.ChartInfo) {
	c.mu.Lock()
	if c.charts[info] {
		c.mu.Unlock()
		return
	}
	c.charts[info] = true
	c.mu.Unlock()

	c.Schedule(c.watchChart(info))
}

func (c *Connector) watchChart(info market.ChartInfo) runtime.Task {
	return func(ctx context.Context) error {
		// 先回填历史，订单条件需要足够的K线才能求值。
		if err := c.emitCandles(ctx, info, int64(c.cfg.CandleLimit)); err != nil {
			c.logger.Warn("回填历史K线失败", zap.String("chart", info.Symbol), zap.Error(err))
		}

		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := c.emitCandles(ctx, info, 2); err != nil {
					c.logger.Warn("拉取K线失败", zap.String("chart", info.Symbol), zap.Error(err))
				}
			}
		}
	}
}

func (c *Connector) emitCandles(ctx context.Context, info market.ChartInfo, limit int64) error {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", info.Interval), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.venue.fetchOHLCV(info.Symbol, info.Interval.String(), limit)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return err
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, market.Candle{
			Time:   time.UnixMilli(item.Timestamp).UTC(),
			Open:   item.Open,
			High:   item.High,
			Low:    item.Low,
			Close:  item.Close,
			Volume: item.Volume,
		})
	}

	if c.store != nil {
		if err := c.store.SaveCandles(ctx, info, candles); err != nil {
			c.logger.Warn("K线落盘失败", zap.Error(err))
		}
	}

	for _, candle := range candles {
		c.Emit(connector.CandleEvent{Info: info, Candle: candle})
	}
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		c.Emit(connector.TradeEvent{Exchange: c.cfg.Exchange, Symbol: info.Symbol, Price: last.Close})
	}

	return nil
}

// Submit 提交订单，给定价格时走限价，否则走市价。
// 客户端订单号带上 Uid，创建响应丢了也能在交易所侧对回这笔订单。
// 交易所明确拒绝时返回 REJECTED 回执而非错误。
func (c *Connector) Submit(ctx context.Context, single order.Single) (connector.Recipe, error) {
	orderType := "limit"
	if single.Price <= 0 {
		orderType = "market"
	}
	params := map[string]interface{}{"newClientOrderId": single.Uid}

	var created ccxt.Order
	err := c.callWithRetry(ctx, "create_order", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := c.venue.createOrder(
			single.Symbol,
			orderType,
			string(single.Command),
			single.Quote,
			single.Price,
			params,
		)
		if err != nil {
			return err
		}
		created = result
		return nil
	})
	if err != nil {
		if isVenueReject(err) {
			c.logger.Info("交易所拒绝订单", zap.String("uid", single.Uid), zap.Error(err))
			return connector.Recipe{Status: order.StatusRejected}, nil
		}
		return connector.Recipe{}, err
	}

	eid := ""
	if created.Id != nil {
		eid = *created.Id
	}
	if eid == "" {
		return connector.Recipe{}, fmt.Errorf("交易所未返回订单号: %s", single.Uid)
	}

	c.mu.Lock()
	c.tracked[eid] = trackedOrder{uid: single.Uid, symbol: single.Symbol, status: order.StatusSubmitted}
	c.mu.Unlock()

	return connector.Recipe{Eid: eid, Status: order.StatusSubmitted}, nil
}

// Cancel 撤销已提交的订单，同时带上 Uid 作为原始客户端订单号。
// 订单已不在交易所时视作撤销完成。
func (c *Connector) Cancel(ctx context.Context, single order.Single) (connector.Recipe, error) {
	params := map[string]interface{}{"origClientOrderId": single.Uid}
	err := c.callWithRetry(ctx, "cancel_order", func() error {
		return c.venue.cancelOrder(single.Eid, single.Symbol, params)
	})
	if err != nil {
		var ccxtErr *ccxt.Error
		if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OrderNotFoundErrType {
			return connector.Recipe{Eid: single.Eid, Status: order.StatusCancelled}, nil
		}
		return connector.Recipe{}, err
	}

	c.mu.Lock()
	delete(c.tracked, single.Eid)
	c.mu.Unlock()

	return connector.Recipe{Eid: single.Eid, Status: order.StatusCancelled}, nil
}

func (c *Connector) ensureMarketsLoaded(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.marketsLoaded
	c.mu.Unlock()
	if loaded {
		return nil
	}

	err := c.callWithRetry(ctx, "load_markets", func() error {
		return c.venue.loadMarkets()
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.marketsLoaded = true
	c.mu.Unlock()
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.cfg.Exchange))
	return nil
}

func (c *Connector) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !isRetryable(err) || attempt >= c.cfg.Retry.MaxAttempts {
			return err
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// isVenueReject 判断错误是否为交易所对订单本身的拒绝。
func isVenueReject(err error) bool {
	var ccxtErr *ccxt.Error
	if !errors.As(err, &ccxtErr) {
		return false
	}
	switch ccxtErr.Type {
	case ccxt.InsufficientFundsErrType,
		ccxt.InvalidOrderErrType,
		ccxt.BadSymbolErrType,
		ccxt.BadRequestErrType:
		return true
	}
	return false
}

// ccxtVenue 把 venue 接口落到 ccxt 币安客户端上。
type ccxtVenue struct {
	exchange *ccxt.Binance
}

var _ venue = (*ccxtVenue)(nil)

func (v *ccxtVenue) loadMarkets() error {
	_, err := v.exchange.LoadMarkets()
	return err
}

func (v *ccxtVenue) createOrder(symbol, orderType, side string, amount, price float64, params map[string]interface{}) (ccxt.Order, error) {
	options := []ccxt.CreateOrderOptions{ccxt.WithCreateOrderParams(params)}
	if orderType == "limit" {
		options = append(options, ccxt.WithCreateOrderPrice(price))
	}
	return v.exchange.CreateOrder(symbol, orderType, side, amount, options...)
}

func (v *ccxtVenue) cancelOrder(eid, symbol string, params map[string]interface{}) error {
	_, err := v.exchange.CancelOrder(eid,
		ccxt.WithCancelOrderSymbol(symbol),
		ccxt.WithCancelOrderParams(params),
	)
	return err
}

func (v *ccxtVenue) fetchOrder(eid, symbol string) (ccxt.Order, error) {
	return v.exchange.FetchOrder(eid, ccxt.WithFetchOrderSymbol(symbol))
}

func (v *ccxtVenue) fetchOHLCV(symbol, timeframe string, limit int64) ([]ccxt.OHLCV, error) {
	return v.exchange.FetchOHLCV(symbol,
		ccxt.WithFetchOHLCVTimeframe(timeframe),
		ccxt.WithFetchOHLCVLimit(limit),
	)
}

func statusFromCcxt(raw *string) order.Status {
	if raw == nil {
		return ""
	}
	switch *raw {
	case "open":
		return order.StatusSubmitted
	case "closed":
		return order.StatusFilled
	case "canceled", "cancelled":
		return order.StatusCancelled
	case "rejected", "expired":
		return order.StatusRejected
	}
	return ""
}
