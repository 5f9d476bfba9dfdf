// Package sdk is the contract between the bot and its plugins.
package sdk

// Notice is a bot-internal notification published on the bus.
type Notice struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Bus is the public side of the notice bus.
type Bus interface {
	Publish(n Notice)
}
