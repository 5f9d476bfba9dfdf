package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/EchoPBX/nimbus/pkg/sdk"
)

type Kind string

const (
	KindEvent   Kind = "event"
	KindCommand Kind = "command"
)

type entry struct {
	name      string
	kind      Kind
	eventType string
	plugin    sdk.Plugin
	command   sdk.CommandPlugin
	info      sdk.CommandInfo
	triggers  map[string]struct{}
}

func (p *entry) hasTrigger(t string) bool {
	_, ok := p.triggers[t]
	return ok
}

// PluginInfo is the read-only view of a registered plugin.
type PluginInfo struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	EventType   string   `json:"event_type"`
	Triggers    []string `json:"triggers,omitempty"`
	ShortHelp   string   `json:"short_help,omitempty"`
	Help        string   `json:"help,omitempty"`
	HelpExample []string `json:"help_example,omitempty"`
}

// Register adds p to the plugin collection. The variant is decided here:
// plugins implementing sdk.CommandPlugin are routed by trigger, all others
// by event type. Triggers are copied, so later changes by the plugin are
// not observed.
func (e *Engine) Register(name string, p sdk.Plugin) error {
	if e.running.Load() {
		return ErrRunning
	}
	if name == "" {
		return errors.New("plugin name is required")
	}
	if p == nil {
		return fmt.Errorf("plugin %q: nil plugin", name)
	}
	ent := &entry{name: name, kind: KindEvent, eventType: p.EventType(), plugin: p}

	if cp, ok := p.(sdk.CommandPlugin); ok {
		info := cp.Command()
		if len(info.Triggers) == 0 {
			return fmt.Errorf("plugin %q: no triggers", name)
		}
		set := make(map[string]struct{}, len(info.Triggers))
		for _, t := range info.Triggers {
			if t == "" || strings.ContainsAny(t, " \t\n") {
				return fmt.Errorf("plugin %q: invalid trigger %q", name, t)
			}
			if _, dup := set[t]; dup {
				return fmt.Errorf("plugin %q: duplicate trigger %q", name, t)
			}
			set[t] = struct{}{}
		}
		info.Triggers = append([]string(nil), info.Triggers...)
		info.HelpExample = append([]string(nil), info.HelpExample...)
		ent.kind = KindCommand
		ent.command = cp
		ent.info = info
		ent.triggers = set
	} else if ent.eventType == "" {
		return fmt.Errorf("plugin %q: empty event type", name)
	}

	e.plugins = append(e.plugins, ent)
	return nil
}

// Plugins lists the collection in registration order.
func (e *Engine) Plugins() []PluginInfo {
	out := make([]PluginInfo, 0, len(e.plugins))
	for _, p := range e.plugins {
		pi := PluginInfo{Name: p.name, Kind: p.kind, EventType: p.eventType}
		if p.kind == KindCommand {
			pi.Triggers = append([]string(nil), p.info.Triggers...)
			pi.ShortHelp = p.info.ShortHelp
			pi.Help = p.info.Help
			pi.HelpExample = append([]string(nil), p.info.HelpExample...)
		}
		out = append(out, pi)
	}
	return out
}

func (e *Engine) StartTime() time.Time  { return e.started }
func (e *Engine) Username() string      { return e.opts.Username }
func (e *Engine) CommandPrefix() string { return e.opts.CommandPrefix }

func (e *Engine) Commands() []sdk.CommandInfo {
	var out []sdk.CommandInfo
	for _, p := range e.plugins {
		if p.kind == KindCommand {
			out = append(out, p.commandInfo())
		}
	}
	return out
}

// Command returns the registered info of the first plugin owning trigger.
// TODO: index triggers in a map if the plugin set ever grows large.
func (e *Engine) Command(trigger string) (sdk.CommandInfo, bool) {
	for _, p := range e.plugins {
		if p.kind == KindCommand && p.hasTrigger(trigger) {
			return p.commandInfo(), true
		}
	}
	return sdk.CommandInfo{}, false
}

func (p *entry) commandInfo() sdk.CommandInfo {
	info := p.info
	info.Triggers = slices.Clone(p.info.Triggers)
	info.HelpExample = slices.Clone(p.info.HelpExample)
	return info
}

func (e *Engine) Post(ctx context.Context, resp *sdk.Response) error {
	return e.conn.Post(ctx, resp)
}

var _ sdk.Bot = (*Engine)(nil)
