package uptime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoPBX/nimbus/pkg/sdk"
)

type bot struct {
	start  time.Time
	posted []*sdk.Response
}

func (b *bot) StartTime() time.Time                   { return b.start }
func (b *bot) Username() string                       { return "nimbus" }
func (b *bot) CommandPrefix() string                  { return "!" }
func (b *bot) Commands() []sdk.CommandInfo            { return nil }
func (b *bot) Command(string) (sdk.CommandInfo, bool) { return sdk.CommandInfo{}, false }
func (b *bot) Post(_ context.Context, r *sdk.Response) error {
	b.posted = append(b.posted, r)
	return nil
}

func TestFormat(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{1500 * time.Millisecond, "0:00:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{24 * time.Hour, "1 day, 0:00:00"},
		{50*time.Hour + 5*time.Second, "2 days, 2:00:05"},
		{-time.Second, "0:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.d))
		})
	}
}

func TestOnCommandPostsUptime(t *testing.T) {
	b := &bot{start: time.Now().Add(-90 * time.Second)}
	p, err := New(nil)
	require.NoError(t, err)

	resp := &sdk.Response{Channel: "C1"}
	err = p.(*Uptime).OnCommand(context.Background(), b, sdk.CommandEvent{Trigger: "uptime"}, resp)
	require.NoError(t, err)

	require.Len(t, b.posted, 1)
	assert.Regexp(t, "^Bot Uptime: `0:01:3[01]`$", b.posted[0].Text)
	assert.Equal(t, []string{"text"}, b.posted[0].MrkdwnIn)
	assert.Equal(t, "C1", b.posted[0].Channel)
}

func TestOnCommandIgnoresArgs(t *testing.T) {
	b := &bot{start: time.Now()}
	u := &Uptime{}
	require.NoError(t, u.OnCommand(context.Background(), b, sdk.CommandEvent{Args: []string{"please"}}, &sdk.Response{}))
	assert.Empty(t, b.posted)
}

func TestCommandInfo(t *testing.T) {
	var u Uptime
	assert.Equal(t, []string{"uptime"}, u.Command().Triggers)
	assert.Equal(t, sdk.EventTypeMessage, u.EventType())
}
