package irq

import (
	"testing"

	"corvid/kernel/gate"
)

func TestBindReplacesPreviousCallback(t *testing.T) {
	defer func() { callbacks[3] = nil }()

	var calls []int
	Bind(3, func(*gate.Registers) { calls = append(calls, 1) })
	Bind(3, func(*gate.Registers) { calls = append(calls, 2) })

	if h := callbacks[3]; h == nil {
		t.Fatal("expected a callback to be registered")
	} else {
		h(&gate.Registers{})
	}

	if len(calls) != 1 || calls[0] != 2 {
		t.Fatalf("expected only the most recent callback to run, got %v", calls)
	}
}

func TestUnboundLineDoesNotPanic(t *testing.T) {
	defer func() { callbacks[9] = nil }()
	dispatch(9, &gate.Registers{})
}
