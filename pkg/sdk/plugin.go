package sdk

import (
	"context"
	"time"
)

// Plugin reacts to every event whose type equals EventType.
type Plugin interface {
	EventType() string
	OnEvent(ctx context.Context, ev Event, resp *Response) error
}

// CommandInfo describes how a command plugin is triggered and documented.
type CommandInfo struct {
	Triggers    []string
	ShortHelp   string
	Help        string
	HelpExample []string
}

// CommandPlugin is invoked instead of OnEvent when a message starts with the
// command prefix followed by one of its triggers.
type CommandPlugin interface {
	Plugin
	Command() CommandInfo
	OnCommand(ctx context.Context, bot Bot, cmd CommandEvent, resp *Response) error
}

// BaseCommand can be embedded by command plugins.
type BaseCommand struct{}

func (BaseCommand) EventType() string { return EventTypeMessage }

func (BaseCommand) OnEvent(context.Context, Event, *Response) error { return nil }

// Bot is the engine as seen by plugins.
type Bot interface {
	StartTime() time.Time
	Username() string
	CommandPrefix() string
	// Commands and Command report the command info captured at
	// registration, which is what routing uses.
	Commands() []CommandInfo
	Command(trigger string) (CommandInfo, bool)
	Post(ctx context.Context, resp *Response) error
}

// Descriptor registers one plugin implementation. Loadable units export
// a function named Plugins returning their descriptors.
type Descriptor struct {
	Name string
	New  func(ctx Context) (Plugin, error)
}

// EntrySymbol is the symbol looked up in every loadable unit.
const EntrySymbol = "Plugins"

// Stopper is implemented by plugins that hold resources until shutdown.
type Stopper interface {
	Stop() error
}
