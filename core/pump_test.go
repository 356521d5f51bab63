package core

import (
	"errors"
	"fmt"
	"testing"
)

type recordingHandler struct {
	id       string
	received []*Message
	reply    *Message
	err      error
}

func (h *recordingHandler) ID() string { return h.id }

func (h *recordingHandler) ReceiveMessage(msg *Message) (*Message, error) {
	h.received = append(h.received, msg)
	return h.reply, h.err
}

func TestEnqueueAppendsQueueAndHistory(t *testing.T) {
	state := NewState("s1", "u1", "test request")

	msg := NewMessage("planning_agent", "research_agent", MessageTaskRequest, nil)
	Enqueue(state, msg)

	if len(state.MessageQueue) != 1 {
		t.Fatalf("Expected 1 queued message, got %d", len(state.MessageQueue))
	}
	if len(state.MessageHistory) != 1 {
		t.Fatalf("Expected 1 history message, got %d", len(state.MessageHistory))
	}
	if state.MessageQueue[0].ID == "" {
		t.Error("Expected message to carry an id")
	}
}

func TestDrainQueueFIFOOrder(t *testing.T) {
	state := NewState("s1", "u1", "test request")
	handler := &recordingHandler{id: "research_agent"}
	handlers := map[string]MessageHandler{"research_agent": handler}

	for i := 0; i < 3; i++ {
		msg := NewMessage("planning_agent", "research_agent", MessageTaskRequest, map[string]interface{}{
			"seq": i,
		})
		Enqueue(state, msg)
	}

	delivered := DrainQueue(state, handlers, 8)
	if delivered != 3 {
		t.Fatalf("Expected 3 delivered, got %d", delivered)
	}

	for i, msg := range handler.received {
		if msg.Content["seq"] != i {
			t.Errorf("Message %d delivered out of order: seq=%v", i, msg.Content["seq"])
		}
	}
}

func TestDrainQueueBoundedByMaxSteps(t *testing.T) {
	state := NewState("s1", "u1", "test request")
	handler := &recordingHandler{id: "budget_agent"}
	handlers := map[string]MessageHandler{"budget_agent": handler}

	for i := 0; i < 10; i++ {
		Enqueue(state, NewMessage("coordinator", "budget_agent", MessageStatusUpdate, nil))
	}

	delivered := DrainQueue(state, handlers, 4)
	if delivered != 4 {
		t.Errorf("Expected 4 delivered, got %d", delivered)
	}
	if len(state.MessageQueue) != 6 {
		t.Errorf("Expected 6 remaining, got %d", len(state.MessageQueue))
	}
}

func TestDeliverMissingRecipientIsNoOp(t *testing.T) {
	state := NewState("s1", "u1", "test request")
	handlers := map[string]MessageHandler{}

	Enqueue(state, NewMessage("coordinator", "nonexistent", MessageTaskRequest, nil))
	delivered := DrainQueue(state, handlers, 4)

	if delivered != 1 {
		t.Errorf("Expected the message to be consumed, delivered=%d", delivered)
	}
	if len(state.AgentStatuses) != 0 {
		t.Error("Missing recipient must not set any status")
	}
}

func TestDeliverHandlerErrorSetsStatus(t *testing.T) {
	state := NewState("s1", "u1", "test request")
	handler := &recordingHandler{id: "gap_agent", err: errors.New("boom")}
	handlers := map[string]MessageHandler{"gap_agent": handler}

	Enqueue(state, NewMessage("research_agent", "gap_agent", MessageTaskRequest, nil))
	DrainQueue(state, handlers, 1)

	st, ok := state.AgentStatuses["gap_agent"]
	if !ok {
		t.Fatal("Expected gap_agent status to be recorded")
	}
	if st.Status != StatusError {
		t.Errorf("Expected error status, got %s", st.Status)
	}
	if st.ErrorMessage != "boom" {
		t.Errorf("Expected error message to be kept, got %q", st.ErrorMessage)
	}
}

func TestDeliverReplyIsEnqueued(t *testing.T) {
	state := NewState("s1", "u1", "test request")
	reply := NewMessage("budget_agent", "response_agent", MessageTaskResponse, nil)
	handler := &recordingHandler{id: "budget_agent", reply: reply}
	handlers := map[string]MessageHandler{"budget_agent": handler}

	Enqueue(state, NewMessage("research_agent", "budget_agent", MessageTaskRequest, nil))
	DrainQueue(state, handlers, 1)

	if len(state.MessageQueue) != 1 {
		t.Fatalf("Expected reply in queue, got %d messages", len(state.MessageQueue))
	}
	if state.MessageQueue[0] != reply {
		t.Error("Expected the reply message to be queued")
	}
	if len(state.MessageHistory) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(state.MessageHistory))
	}
}

func TestPanicToError(t *testing.T) {
	if err := PanicToError(errors.New("already an error")); err.Error() != "already an error" {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := PanicToError("plain string"); err.Error() != fmt.Sprintf("panic: %v", "plain string") {
		t.Errorf("Unexpected error: %v", err)
	}
}
