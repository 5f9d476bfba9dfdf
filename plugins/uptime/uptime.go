// Package uptime reports how long the bot has been running.
package uptime

import (
	"context"
	"fmt"
	"time"

	"github.com/EchoPBX/nimbus/pkg/sdk"
)

var Descriptor = sdk.Descriptor{Name: "Uptime", New: New}

type Uptime struct {
	sdk.BaseCommand
}

func New(sdk.Context) (sdk.Plugin, error) { return &Uptime{}, nil }

func (*Uptime) Command() sdk.CommandInfo {
	return sdk.CommandInfo{
		Triggers:    []string{"uptime"},
		ShortHelp:   "Prints out the uptime of the bot",
		Help:        "Prints out the uptime of the bot",
		HelpExample: []string{"!uptime"},
	}
}

func (*Uptime) OnCommand(ctx context.Context, bot sdk.Bot, cmd sdk.CommandEvent, resp *sdk.Response) error {
	if len(cmd.Args) > 0 {
		return nil
	}
	resp.Text = fmt.Sprintf("Bot Uptime: `%s`", Format(time.Since(bot.StartTime())))
	resp.MrkdwnIn = []string{"text"}
	return bot.Post(ctx, resp)
}

// Format renders d as "[N day(s), ]H:MM:SS", truncated to whole seconds.
func Format(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	days := secs / 86400
	secs %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
