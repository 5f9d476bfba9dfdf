package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/EchoPBX/nimbus/internal/workers"
	"github.com/EchoPBX/nimbus/pkg/sdk"
)

// ErrorAttachment renders a plugin error for the channel.
func ErrorAttachment(plugin, msg string) sdk.Attachment {
	return sdk.Attachment{
		Title:    fmt.Sprintf("Error with plugin '%s'", plugin),
		Text:     msg,
		Fallback: msg,
		MrkdwnIn: []string{"text"},
		Color:    sdk.ColorDanger,
	}
}

// report handles one finished invocation. Plugin errors are posted back to
// the channel, anything else is only logged.
func (e *Engine) report(ctx context.Context, res workers.Result) {
	inv, ok := res.Task.Meta.(*invocation)
	if !ok {
		return
	}
	log := e.log.With(
		zap.String("plugin", inv.plugin.name),
		zap.String("invocation", res.Task.ID),
		zap.String("event_type", inv.event.Type),
		zap.String("channel", inv.event.Channel),
		zap.Duration("took", res.Duration),
	)
	if res.Err == nil {
		log.Debug("plugin invocation finished")
		return
	}

	var perr *sdk.PluginError
	if errors.As(res.Err, &perr) {
		log.Info("plugin reported error", zap.String("message", perr.Message))
		inv.resp.Attachments = append(inv.resp.Attachments, ErrorAttachment(inv.plugin.name, perr.Message))
		// posted off the drain loop so a slow chat API does not hold up other reports
		e.posts.Add(1)
		go func() {
			defer e.posts.Done()
			if err := e.conn.Post(ctx, inv.resp); err != nil {
				log.Warn("failed to post plugin error", zap.Error(err))
			}
		}()
		e.bus.Publish(sdk.Notice{
			Type: "plugin.error",
			Data: map[string]any{
				"plugin":     inv.plugin.name,
				"invocation": res.Task.ID,
				"channel":    inv.event.Channel,
				"message":    perr.Message,
			},
		})
		return
	}

	fields := []zap.Field{zap.Error(res.Err)}
	var pe *workers.PanicError
	if errors.As(res.Err, &pe) {
		fields = append(fields, zap.ByteString("stack", pe.Stack))
	}
	log.Error("plugin invocation failed", fields...)
}
