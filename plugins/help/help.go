// Package help lists the available commands.
package help

import (
	"context"
	"fmt"
	"strings"

	"github.com/EchoPBX/nimbus/pkg/sdk"
)

var Descriptor = sdk.Descriptor{Name: "Help", New: New}

type Help struct {
	sdk.BaseCommand
}

func New(sdk.Context) (sdk.Plugin, error) { return &Help{}, nil }

func (*Help) Command() sdk.CommandInfo {
	return sdk.CommandInfo{
		Triggers:    []string{"help"},
		ShortHelp:   "Lists commands or explains one",
		Help:        "Without arguments lists every command. With a command name shows its help and examples.",
		HelpExample: []string{"!help", "!help uptime"},
	}
}

func (*Help) OnCommand(ctx context.Context, bot sdk.Bot, cmd sdk.CommandEvent, resp *sdk.Response) error {
	prefix := bot.CommandPrefix()
	var b strings.Builder
	if len(cmd.Args) == 0 {
		b.WriteString("*Commands*\n")
		for _, info := range bot.Commands() {
			if len(info.Triggers) == 0 {
				continue
			}
			fmt.Fprintf(&b, "`%s%s` %s\n", prefix, strings.Join(info.Triggers, "`, `"+prefix), info.ShortHelp)
		}
	} else {
		name := strings.TrimPrefix(cmd.Args[0], prefix)
		info, ok := bot.Command(name)
		if !ok {
			return sdk.Errorf("No command named `%s`", name)
		}
		fmt.Fprintf(&b, "*%s%s*\n%s\n", prefix, name, info.Help)
		if len(info.HelpExample) > 0 {
			b.WriteString("*Examples*\n")
			for _, ex := range info.HelpExample {
				fmt.Fprintf(&b, "> %s\n", ex)
			}
		}
	}
	resp.Text = strings.TrimRight(b.String(), "\n")
	resp.MrkdwnIn = []string{"text"}
	return bot.Post(ctx, resp)
}
