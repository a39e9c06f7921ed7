package plugin

import (
	"errors"
	"testing"
	"time"
)

func TestInvokeRunsInRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Register(EventChatMessage, "first", func(payload any) (bool, error) {
		order = append(order, "first")
		return false, nil
	})
	r.Register(EventChatMessage, "second", func(payload any) (bool, error) {
		order = append(order, "second")
		return false, nil
	})

	r.Invoke(EventChatMessage, nil, time.Now())

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected invocation order: %v", order)
	}
}

func TestConsumedStopsLaterCallbacks(t *testing.T) {
	r := NewRegistry()
	var secondRan bool
	r.Register(EventChatMessage, "blocker", func(payload any) (bool, error) {
		return true, nil
	})
	r.Register(EventChatMessage, "later", func(payload any) (bool, error) {
		secondRan = true
		return false, nil
	})

	consumed := r.Invoke(EventChatMessage, nil, time.Now())
	if !consumed {
		t.Fatal("expected event to be reported consumed")
	}
	if secondRan {
		t.Fatal("callback after a consuming hook should not run")
	}
}

func TestPluginDisabledAfterRepeatedFailures(t *testing.T) {
	r := NewRegistry()
	var calls int
	r.Register(EventTimer, "flaky", func(payload any) (bool, error) {
		calls++
		return false, errors.New("boom")
	})

	now := time.Now()
	for i := 0; i < maxConsecutiveFailures; i++ {
		r.Invoke(EventTimer, nil, now)
	}
	callsBeforeDisable := calls

	r.Invoke(EventTimer, nil, now.Add(time.Second))
	if calls != callsBeforeDisable {
		t.Fatal("disabled plugin should not be invoked during its cool-off window")
	}

	r.Invoke(EventTimer, nil, now.Add(failureWindow+time.Second))
	if calls != callsBeforeDisable+1 {
		t.Fatal("plugin should run again once the cool-off window elapses")
	}
}

func TestUnregisterRemovesHook(t *testing.T) {
	r := NewRegistry()
	var ran bool
	r.Register(EventKick, "temp", func(payload any) (bool, error) {
		ran = true
		return false, nil
	})
	r.Unregister(EventKick, "temp")
	r.Invoke(EventKick, nil, time.Now())
	if ran {
		t.Fatal("unregistered hook should not run")
	}
}
