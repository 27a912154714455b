package ui

import (
	"fmt"
	"strings"

	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
)

// 前端命令语言，每行一条命令：
//
//	parallel: <订单文本>     与现有订单并行合并
//	sequent: <订单文本>      与现有订单顺序合并
//	cancel: <uid>            取消一个订单节点
//	trader: <名字>           挂载一个新交易器
//	connector: <交易器> <连接器>  给交易器挂载连接器
//	session: <名字>          挂载一个新会话
//	show                     重新渲染当前状态（由前端本地处理）

// AddOrderEvent 请求把新订单合并进交易器的订单树。
type AddOrderEvent struct {
	Order order.Order
	Mode  order.Mode
}

func (AddOrderEvent) EventName() string { return "add_order" }

// CancelOrderEvent 请求取消一个订单节点。
type CancelOrderEvent struct {
	Uid string
}

func (CancelOrderEvent) EventName() string { return "cancel_order" }

// AddTraderEvent 请求在会话下挂载一个交易器。
type AddTraderEvent struct {
	Name string
}

func (AddTraderEvent) EventName() string { return "add_trader" }

// AddConnectorEvent 请求给交易器挂载一个连接器。
type AddConnectorEvent struct {
	TraderName    string
	ConnectorName string
}

func (AddConnectorEvent) EventName() string { return "add_connector" }

// AddSessionEvent 请求在应用下挂载一个会话。
type AddSessionEvent struct {
	Name string
}

func (AddSessionEvent) EventName() string { return "add_session" }

// UpdateEvent 把最新的订单树与行情快照推给前端展示。
type UpdateEvent struct {
	Order  order.Order
	Market market.Market
}

func (UpdateEvent) EventName() string { return "update" }

// ShowEvent 让前端重新渲染当前状态，不会离开前端模块。
type ShowEvent struct{}

func (ShowEvent) EventName() string { return "show" }

// ParseLine 把一行前端输入编译为事件。
func ParseLine(line string) (runtime.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("空命令")
	}

	if line == "show" {
		return ShowEvent{}, nil
	}

	command, rest, found := strings.Cut(line, ":")
	if !found {
		return nil, fmt.Errorf("未知命令 %q", line)
	}
	command = strings.TrimSpace(command)
	rest = strings.TrimSpace(rest)

	switch command {
	case string(order.ModeParallel), string(order.ModeSequent):
		parsed, err := order.Parse(rest)
		if err != nil {
			return nil, err
		}
		return AddOrderEvent{Order: parsed, Mode: order.Mode(command)}, nil

	case "cancel":
		if rest == "" {
			return nil, fmt.Errorf("cancel 需要订单 uid")
		}
		return CancelOrderEvent{Uid: rest}, nil

	case "trader":
		if rest == "" {
			return nil, fmt.Errorf("trader 需要名字")
		}
		return AddTraderEvent{Name: rest}, nil

	case "connector":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return nil, fmt.Errorf("connector 需要交易器与连接器两个名字")
		}
		return AddConnectorEvent{TraderName: fields[0], ConnectorName: fields[1]}, nil

	case "session":
		if rest == "" {
			return nil, fmt.Errorf("session 需要名字")
		}
		return AddSessionEvent{Name: rest}, nil
	}

	return nil, fmt.Errorf("未知命令 %q", command)
}
