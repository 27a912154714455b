package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gregrebin/cihat-bot/internal/market"
	"github.com/gregrebin/cihat-bot/internal/order"
	"github.com/gregrebin/cihat-bot/internal/runtime"
	"github.com/gregrebin/cihat-bot/internal/ui"
)

// probe 是一个只记录收到事件的子模块。
type probe struct {
	*runtime.Module
	runtime.NopHooks

	events chan runtime.Event
}

func newProbe(category, name string) *probe {
	p := &probe{
		Module: runtime.NewModule(category, name, nil),
		events: make(chan runtime.Event, 16),
	}
	p.Module.Init(p)
	return p
}

func (p *probe) OnEvent(ctx context.Context, event runtime.Event) {
	if _, ok := event.(runtime.StopEvent); ok {
		return
	}
	p.events <- event
}

func waitEvent(t *testing.T, events chan runtime.Event, name string) runtime.Event {
	t.Helper()
	select {
	case event := <-events:
		if event.EventName() != name {
			t.Fatalf("expected %q, got %q", name, event.EventName())
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("event %q did not arrive", name)
		return nil
	}
}

func expectNoEvent(t *testing.T, events chan runtime.Event) {
	t.Helper()
	select {
	case event := <-events:
		t.Fatalf("unexpected event %q", event.EventName())
	case <-time.After(50 * time.Millisecond):
	}
}

func startSession(t *testing.T, s *Session) (trader, frontend *probe) {
	t.Helper()
	trader = newProbe("trader", "main")
	frontend = newProbe("ui", "cli")
	if err := s.Attach(trader); err != nil {
		t.Fatalf("attach trader: %v", err)
	}
	if err := s.Attach(frontend); err != nil {
		t.Fatalf("attach ui: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		s.Stop()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("session exited with error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("session did not exit")
		}
	})
	return trader, frontend
}

func TestSession_RoutesOrdersToTraders(t *testing.T) {
	s := New("main", nil, nil)
	trader, frontend := startSession(t, s)

	parsed, err := order.Parse("buy 5 BTCUSDT in Binance at 20000")
	if err != nil {
		t.Fatalf("parse order: %v", err)
	}
	frontend.Emit(ui.AddOrderEvent{Order: parsed, Mode: order.ModeParallel})

	waitEvent(t, trader.events, "add_order")
	expectNoEvent(t, frontend.events)
}

func TestSession_RoutesCancelToTraders(t *testing.T) {
	s := New("main", nil, nil)
	trader, _ := startSession(t, s)

	s.Deliver(ui.CancelOrderEvent{Uid: "abc"})

	event := waitEvent(t, trader.events, "cancel_order")
	if cancel := event.(ui.CancelOrderEvent); cancel.Uid != "abc" {
		t.Errorf("unexpected uid: %s", cancel.Uid)
	}
}

func TestSession_RoutesUpdatesToUis(t *testing.T) {
	s := New("main", nil, nil)
	trader, frontend := startSession(t, s)

	trader.Emit(ui.UpdateEvent{Order: order.Empty{}, Market: market.Market{}})

	waitEvent(t, frontend.events, "update")
	expectNoEvent(t, trader.events)
}

func TestSession_ForwardsSessionCommandUp(t *testing.T) {
	parent := newProbe("application", "app")
	s := New("main", nil, nil)
	parent.AddSubmodule(s)
	frontend := startSessionUnder(t, parent, s)

	frontend.Emit(ui.AddSessionEvent{Name: "second"})

	event := waitEvent(t, parent.events, "add_session")
	if add := event.(ui.AddSessionEvent); add.Name != "second" {
		t.Errorf("unexpected session name: %s", add.Name)
	}
}

func startSessionUnder(t *testing.T, parent *probe, s *Session) *probe {
	t.Helper()
	frontend := newProbe("ui", "cli")
	if err := s.Attach(frontend); err != nil {
		t.Fatalf("attach ui: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- parent.Run(context.Background()) }()
	t.Cleanup(func() {
		parent.Stop()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("application exited with error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("application did not exit")
		}
	})
	return frontend
}

func TestSession_AttachRejectsWrongCategory(t *testing.T) {
	s := New("main", nil, nil)
	if err := s.Attach(newProbe("connector", "binance")); err == nil {
		t.Errorf("expected error for connector attach")
	}
}
