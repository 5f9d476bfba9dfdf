package sdk

import "fmt"

// PluginError is a user-facing failure. Its message is posted back to the
// channel the event came from.
type PluginError struct {
	Message string
}

func (e *PluginError) Error() string { return e.Message }

// Errorf builds a PluginError.
func Errorf(format string, args ...any) error {
	return &PluginError{Message: fmt.Sprintf(format, args...)}
}
