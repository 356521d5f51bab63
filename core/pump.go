package core

import (
	"fmt"
)

// Enqueue appends a message to the state's FIFO queue and to the
// append-only history.
func Enqueue(s *State, msg *Message) {
	if msg == nil {
		return
	}
	s.MessageQueue = append(s.MessageQueue, msg)
	s.MessageHistory = append(s.MessageHistory, msg)
}

// Deliver dispatches one message to its recipient. A missing recipient
// is a no-op. A handler error marks the recipient's status as error and
// stops the chain for that message. A non-nil reply is enqueued.
func Deliver(s *State, handlers map[string]MessageHandler, msg *Message) {
	handler, ok := handlers[msg.Recipient]
	if !ok {
		return
	}
	reply, err := handler.ReceiveMessage(msg)
	if err != nil {
		s.SetAgentStatus(msg.Recipient, StatusError, "", err.Error())
		return
	}
	if reply != nil {
		Enqueue(s, reply)
	}
}

// DrainQueue pops and delivers up to maxSteps messages, then returns
// the number delivered. The bound is the pipeline's sole backpressure
// mechanism; later stages drain again.
func DrainQueue(s *State, handlers map[string]MessageHandler, maxSteps int) int {
	if maxSteps <= 0 {
		return 0
	}
	delivered := 0
	for delivered < maxSteps && len(s.MessageQueue) > 0 {
		msg := s.MessageQueue[0]
		s.MessageQueue = s.MessageQueue[1:]
		Deliver(s, handlers, msg)
		delivered++
	}
	return delivered
}

// PanicToError converts a recovered panic value into an error. Used by
// stage wrappers and the worker pool.
func PanicToError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
