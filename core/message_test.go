package core

import "testing"

func TestNewMessageDefaults(t *testing.T) {
	msg := NewMessage("coordinator", "planning_agent", MessageTaskRequest, map[string]interface{}{"k": "v"})
	if msg.ID == "" {
		t.Error("message id not generated")
	}
	if msg.Priority != PriorityNormal {
		t.Errorf("default priority = %d, want %d", msg.Priority, PriorityNormal)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestWithPriorityClamps(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{PriorityLow, PriorityLow},
		{PriorityCritical, PriorityCritical},
		{0, PriorityLow},
		{-3, PriorityLow},
		{9, PriorityCritical},
	}
	for _, tc := range cases {
		msg := NewMessage("a", "b", MessageStatusUpdate, nil).WithPriority(tc.in)
		if msg.Priority != tc.want {
			t.Errorf("WithPriority(%d) = %d, want %d", tc.in, msg.Priority, tc.want)
		}
	}
}
