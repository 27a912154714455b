package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gregrebin/cihat-bot/internal/indicator"
	"github.com/gregrebin/cihat-bot/internal/market"
)

// Status 表示单个订单在状态机中的位置。
type Status string

const (
	StatusNew       Status = "new"
	StatusSubmitted Status = "submitted"
	StatusCancelled Status = "cancelled"
	StatusFilled    Status = "filled"
	StatusRejected  Status = "rejected"
)

// Terminal 判断状态是否为终态。终态订单不再参与任何状态迁移。
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusFilled, StatusRejected:
		return true
	}
	return false
}

// rank 给出状态机中的前进方向，状态只能沿 rank 增大的方向迁移。
func (s Status) rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusSubmitted:
		return 1
	default:
		return 2
	}
}

// Command 表示买卖方向。
type Command string

const (
	CommandBuy  Command = "buy"
	CommandSell Command = "sell"
)

// Mode 表示组合订单的执行方式。
type Mode string

const (
	// ModeParallel 下所有子订单同时可执行。
	ModeParallel Mode = "parallel"
	// ModeSequent 下子订单按顺序执行，前一个未完成时后面的不可见。
	ModeSequent Mode = "sequent"
)

// Requirement 描述订单树需要的一条行情序列及最早提交时间。
type Requirement struct {
	Time time.Time
	Info market.ChartInfo
}

// Order 是不可变的订单树。所有修改操作返回新的根节点，
// 未变化的子树在新旧两棵树之间共享；查找不到目标节点时静默返回原树，
// 因为交易所确认可能与本地撤单竞争，过期引用是常态而非错误。
type Order interface {
	// Add 以 mode 组合两棵订单树，同模式的 Multiple 会在子列表层面展开。
	Add(other Order, mode Mode) Order
	// Cancel 取消 uid 对应的节点：NEW 直接转 CANCELLED，
	// SUBMITTED 只标记 to_cancel 等待交易所确认，终态节点不变。
	Cancel(uid string) Order
	// Get 收集可见的叶子订单。pending 为 true 时只返回 NEW/SUBMITTED 的叶子，
	// 并且 SEQUENT 组合在前一步还有待处理叶子时隐藏后续步骤；
	// pending 为 false 时返回全部叶子，不做顺序屏蔽。
	Get(pending bool) []Single
	// SetEid 给 uid 对应节点设置交易所订单号，每个节点至多设置一次。
	SetEid(uid, eid string) Order
	// UpdateStatus 按 uid 或 eid（至少提供一个）匹配节点并推进其状态，
	// 状态只能沿状态机前进，终态节点不再变化。
	UpdateStatus(uid, eid string, status Status) Order
	// Requirements 返回订单树需要订阅的全部行情序列。
	Requirements() []Requirement
	// String 按订单语言渲染，输出可以重新解析。
	String() string
	// Describe 渲染带状态标注的文本，供前端展示。
	Describe() string

	addTerm(mode Mode) []Order
}

func newUID() string {
	return uuid.NewString()
}

func compose(self, other Order, mode Mode) Order {
	selfTerms := self.addTerm(mode)
	otherTerms := other.addTerm(mode)

	orders := make([]Order, 0, len(selfTerms)+len(otherTerms))
	orders = append(orders, selfTerms...)
	orders = append(orders, otherTerms...)

	return Multiple{Mode: mode, Orders: orders}
}

func isEmpty(o Order) bool {
	_, ok := o.(Empty)
	return ok
}

// Empty 是空订单，组合与取消的吸收元。
type Empty struct{}

func (e Empty) Add(other Order, mode Mode) Order { return other }

func (e Empty) Cancel(uid string) Order { return e }

func (e Empty) Get(pending bool) []Single { return nil }

func (e Empty) SetEid(uid, eid string) Order { return e }

func (e Empty) UpdateStatus(uid, eid string, status Status) Order { return e }

func (e Empty) Requirements() []Requirement { return nil }

func (e Empty) String() string { return "empty" }

func (e Empty) Describe() string { return "empty" }

func (e Empty) addTerm(mode Mode) []Order { return nil }

// Single 是一个具体订单。
type Single struct {
	Status   Status
	ToCancel bool
	Uid      string
	Eid      string

	Command  Command
	Exchange string
	Symbol   string
	Quote    float64
	Base     float64
	Price    float64

	Time       time.Time
	Conditions []indicator.Condition
}

// Draft 是构造 Single 所需的字段，Quote 与 Base 只给其中一个。
type Draft struct {
	Command    Command
	Exchange   string
	Symbol     string
	Quote      float64
	Base       float64
	Price      float64
	Time       time.Time
	Conditions []indicator.Condition
}

// NewSingle 创建一个 NEW 状态的订单并生成全局唯一的 uid。
// 已知价格时会立即推导缺失的 Quote 或 Base。
func NewSingle(d Draft) Single {
	at := d.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s := Single{
		Status:     StatusNew,
		Uid:        newUID(),
		Command:    d.Command,
		Exchange:   d.Exchange,
		Symbol:     d.Symbol,
		Quote:      d.Quote,
		Base:       d.Base,
		Price:      d.Price,
		Time:       at,
		Conditions: d.Conditions,
	}

	if s.Price > 0 {
		if s.Quote <= 0 {
			s.Quote = s.Base / s.Price
		} else {
			s.Base = s.Quote * s.Price
		}
	}

	return s
}

func (s Single) Add(other Order, mode Mode) Order {
	if isEmpty(other) {
		return s
	}
	return compose(s, other, mode)
}

func (s Single) Cancel(uid string) Order {
	if s.Uid != uid {
		return s
	}
	switch s.Status {
	case StatusNew:
		s.Status = StatusCancelled
		return s
	case StatusSubmitted:
		s.ToCancel = true
		return s
	}
	return s
}

func (s Single) Get(pending bool) []Single {
	if pending && s.Status != StatusNew && s.Status != StatusSubmitted {
		return nil
	}
	return []Single{s}
}

func (s Single) SetEid(uid, eid string) Order {
	if s.Uid != uid || s.Eid != "" {
		return s
	}
	s.Eid = eid
	return s
}

func (s Single) UpdateStatus(uid, eid string, status Status) Order {
	matched := (uid != "" && s.Uid == uid) || (eid != "" && s.Eid == eid)
	if !matched || status == "" {
		return s
	}
	if s.Status.Terminal() || status.rank() < s.Status.rank() {
		return s
	}
	s.Status = status
	if status.Terminal() {
		s.ToCancel = false
	}
	return s
}

func (s Single) Requirements() []Requirement {
	requirements := make([]Requirement, 0, len(s.Conditions))
	for _, condition := range s.Conditions {
		requirements = append(requirements, Requirement{
			Time: s.Time,
			Info: market.ChartInfo{Exchange: s.Exchange, Symbol: s.Symbol, Interval: condition.Interval},
		})
	}
	return requirements
}

func (s Single) String() string {
	var b strings.Builder
	b.WriteString(string(s.Command))
	b.WriteString(" ")
	b.WriteString(formatDecimal(s.Quote))
	b.WriteString(" ")
	b.WriteString(s.Symbol)
	b.WriteString(" in ")
	b.WriteString(s.Exchange)
	b.WriteString(" at ")
	b.WriteString(formatDecimal(s.Price))

	if len(s.Conditions) > 0 {
		b.WriteString(" if ")
		for i, condition := range s.Conditions {
			if i > 0 {
				b.WriteString(" and ")
			}
			b.WriteString(condition.String())
		}
	}

	return b.String()
}

func (s Single) Describe() string {
	status := string(s.Status)
	if s.ToCancel {
		status = "to_cancel"
	}
	return fmt.Sprintf("%s <%s-%s-%s>", s.String(), status, s.Uid, s.Eid)
}

func (s Single) addTerm(mode Mode) []Order { return []Order{s} }

// Multiple 是一组以 PARALLEL 或 SEQUENT 方式组合的子订单。
type Multiple struct {
	Mode   Mode
	Orders []Order
}

func (m Multiple) Add(other Order, mode Mode) Order {
	if isEmpty(other) {
		return m
	}
	return compose(m, other, mode)
}

func (m Multiple) Cancel(uid string) Order {
	return m.rewrite(func(child Order) Order { return child.Cancel(uid) })
}

func (m Multiple) Get(pending bool) []Single {
	var singles []Single
	for _, child := range m.Orders {
		got := child.Get(pending)
		singles = append(singles, got...)
		// SEQUENT: 前一步还有待处理叶子时，后面的步骤本轮不可见。
		if m.Mode == ModeSequent && pending && len(got) > 0 {
			break
		}
	}
	return singles
}

func (m Multiple) SetEid(uid, eid string) Order {
	return m.rewrite(func(child Order) Order { return child.SetEid(uid, eid) })
}

func (m Multiple) UpdateStatus(uid, eid string, status Status) Order {
	return m.rewrite(func(child Order) Order { return child.UpdateStatus(uid, eid, status) })
}

func (m Multiple) Requirements() []Requirement {
	var requirements []Requirement
	for _, child := range m.Orders {
		requirements = append(requirements, child.Requirements()...)
	}
	return requirements
}

func (m Multiple) String() string {
	parts := make([]string, len(m.Orders))
	for i, child := range m.Orders {
		parts[i] = child.String()
	}
	return fmt.Sprintf("[%s %s]", string(m.Mode), strings.Join(parts, "; "))
}

func (m Multiple) Describe() string {
	parts := make([]string, len(m.Orders))
	for i, child := range m.Orders {
		parts[i] = child.Describe()
	}
	return fmt.Sprintf("[%s %s]", string(m.Mode), strings.Join(parts, "; "))
}

func (m Multiple) addTerm(mode Mode) []Order {
	if m.Mode == mode {
		orders := make([]Order, len(m.Orders))
		copy(orders, m.Orders)
		return orders
	}
	return []Order{m}
}

// rewrite 对每个子节点应用变换，路径上的节点被复制，其余子树共享。
func (m Multiple) rewrite(apply func(Order) Order) Order {
	orders := make([]Order, len(m.Orders))
	for i, child := range m.Orders {
		orders[i] = apply(child)
	}
	return Multiple{Mode: m.Mode, Orders: orders}
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
