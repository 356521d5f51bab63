package core

import (
	"context"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// MessageHandler is implemented by anything that can receive pump messages.
// A non-nil reply is re-enqueued by the pump.
type MessageHandler interface {
	ID() string
	ReceiveMessage(msg *Message) (*Message, error)
}

// Agent is the contract every pipeline stage component implements.
// ExecuteTask performs one stage-bounded unit of work against the shared
// state and returns a result map that must carry a "status" key.
type Agent interface {
	MessageHandler
	ExecuteTask(ctx context.Context, state *State) (map[string]interface{}, error)
}

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}
