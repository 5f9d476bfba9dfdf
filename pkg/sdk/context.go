package sdk

import "go.uber.org/zap"

// Context is handed to plugin constructors.
type Context interface {
	Log() *zap.Logger
	Bot() Bot
	Bus() Bus
	Config() map[string]any
}
