package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EchoPBX/nimbus/internal/workers"
	"github.com/EchoPBX/nimbus/pkg/sdk"
)

// invocation travels with a pool task so the reporter can find its draft.
type invocation struct {
	plugin *entry
	event  sdk.Event
	resp   *sdk.Response
}

// Filtered reports whether ev must never reach a plugin: messages posted by
// bots (including ourselves) and hidden edits or deletions.
func Filtered(ev sdk.Event) bool {
	return ev.Subtype == sdk.SubtypeBotMessage || ev.Hidden
}

// ParseCommand splits "<prefix>trigger args..." into its trigger and args.
func ParseCommand(text, prefix string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// Process submits one invocation per matching plugin and returns how many
// were accepted by the pool.
func (e *Engine) Process(ctx context.Context, ev sdk.Event) int {
	if Filtered(ev) {
		e.log.Debug("event filtered", zap.String("type", ev.Type), zap.String("subtype", ev.Subtype))
		return 0
	}
	if e.debug.Load() {
		e.log.Info("event received", zap.Any("event", ev))
	}

	var (
		trigger string
		args    []string
		isCmd   bool
	)
	if ev.Type == sdk.EventTypeMessage {
		trigger, args, isCmd = ParseCommand(ev.Text, e.opts.CommandPrefix)
	}

	n := 0
	for _, p := range e.plugins {
		p := p // per-iteration copy; closures below run on the worker pool
		var run func(context.Context, *sdk.Response) error
		switch p.kind {
		case KindCommand:
			if !isCmd || !p.hasTrigger(trigger) {
				continue
			}
			cmd := sdk.CommandEvent{Event: ev.Clone(), Trigger: trigger, Args: append([]string(nil), args...)}
			run = func(ctx context.Context, resp *sdk.Response) error {
				return p.command.OnCommand(ctx, e, cmd, resp)
			}
		default:
			if p.eventType != ev.Type {
				continue
			}
			evc := ev.Clone()
			run = func(ctx context.Context, resp *sdk.Response) error {
				return p.plugin.OnEvent(ctx, evc, resp)
			}
		}

		inv := &invocation{plugin: p, event: ev, resp: e.draft(ev)}
		task := workers.Task{
			ID:   uuid.NewString(),
			Meta: inv,
			Run:  func(ctx context.Context) error { return run(ctx, inv.resp) },
		}
		if err := e.pool.Submit(task); err != nil {
			e.log.Warn("plugin invocation dropped",
				zap.String("plugin", p.name),
				zap.String("event_type", ev.Type),
				zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// draft seeds a fresh response with the bot identity and source channel.
func (e *Engine) draft(ev sdk.Event) *sdk.Response {
	return &sdk.Response{
		Username:  e.opts.Username,
		IconEmoji: e.opts.IconEmoji,
		Channel:   ev.Channel,
	}
}
