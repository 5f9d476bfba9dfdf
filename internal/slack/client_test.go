package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EchoPBX/nimbus/internal/config"
	"github.com/EchoPBX/nimbus/pkg/sdk"
)

type fakeSlack struct {
	t      *testing.T
	srv    *httptest.Server
	frames []string

	mu    sync.Mutex
	posts []map[string]string
	auth  []string
}

func newFakeSlack(t *testing.T, frames ...string) *fakeSlack {
	f := &fakeSlack{t: t, frames: frames}
	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/rtm.connect", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":   true,
			"url":  wsURL,
			"self": map[string]string{"id": "U0BOT", "name": "nimbus"},
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, fr := range f.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(fr)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		post := map[string]string{}
		for k := range r.PostForm {
			post[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.posts = append(f.posts, post)
		f.mu.Unlock()
		if post["channel"] == "CGONE" {
			_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	cfg, err := config.Parse([]byte("token: xoxb-test\nslack:\n  api_url: " + apiURL + "\n"))
	require.NoError(t, err)
	return cfg
}

func TestConnectAndPoll(t *testing.T) {
	f := newFakeSlack(t,
		`{"type":"hello"}`,
		`{"ok":true,"reply_to":1}`,
		`{"type":"message","channel":"C1","user":"U1","text":"!uptime","ts":"1.0"}`,
	)
	c := NewClient(testConfig(t, f.srv.URL), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, "nimbus", c.Self().Name)
	go c.Run(ctx)

	var got []sdk.Event
	require.Eventually(t, func() bool {
		evs, err := c.Poll(ctx)
		if err != nil {
			return false
		}
		got = append(got, evs...)
		return len(got) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "hello", got[0].Type)
	assert.Equal(t, "message", got[1].Type)
	assert.Equal(t, "C1", got[1].Channel)
	assert.Equal(t, "!uptime", got[1].Text)
	assert.Equal(t, []string{"Bearer xoxb-test"}, f.auth)

	c.Close()
	_, err := c.Poll(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(t, srv.URL), zap.NewNop())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_auth")
}

func TestPostEncodesDraft(t *testing.T) {
	f := newFakeSlack(t)
	c := NewClient(testConfig(t, f.srv.URL), zap.NewNop())

	err := c.Post(context.Background(), &sdk.Response{
		Channel:   "C1",
		Username:  "nimbus",
		IconEmoji: ":cloud:",
		Attachments: []sdk.Attachment{{
			Title: "Error with plugin 'Weather'", Text: "boom", Fallback: "boom",
			Color: sdk.ColorDanger, MrkdwnIn: []string{"text"},
		}},
	})
	require.NoError(t, err)

	require.Len(t, f.posts, 1)
	p := f.posts[0]
	assert.Equal(t, "C1", p["channel"])
	assert.Equal(t, "nimbus", p["username"])
	assert.Equal(t, ":cloud:", p["icon_emoji"])
	assert.NotContains(t, p, "text")

	var atts []sdk.Attachment
	require.NoError(t, json.Unmarshal([]byte(p["attachments"]), &atts))
	require.Len(t, atts, 1)
	assert.Equal(t, "boom", atts[0].Text)
	assert.Equal(t, "boom", atts[0].Fallback)
	assert.Equal(t, "danger", atts[0].Color)
}

func TestPostSurfacesAPIError(t *testing.T) {
	f := newFakeSlack(t)
	c := NewClient(testConfig(t, f.srv.URL), zap.NewNop())

	err := c.Post(context.Background(), &sdk.Response{Channel: "CGONE", Text: "hi"})
	assert.ErrorContains(t, err, "channel_not_found")
}

func TestFakeModeEmitsCommands(t *testing.T) {
	cfg := testConfig(t, "http://unused.invalid")
	cfg.Slack.Fake = true
	c := NewClient(cfg, zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Post(context.Background(), &sdk.Response{Text: "hi"}))

	c.enqueue(sdk.Event{Type: "message"})
	evs, err := c.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		ok    bool
		want  sdk.Event
	}{
		{"message", `{"type":"message","channel":"C1","user":"U1","text":"hi","ts":"1.2"}`, true,
			sdk.Event{Type: "message", Channel: "C1", User: "U1", Text: "hi", TS: "1.2"}},
		{"bot message", `{"type":"message","subtype":"bot_message","channel":"C1"}`, true,
			sdk.Event{Type: "message", Subtype: "bot_message", Channel: "C1"}},
		{"hidden edit", `{"type":"message","subtype":"message_changed","hidden":true,"channel":"C1"}`, true,
			sdk.Event{Type: "message", Subtype: "message_changed", Hidden: true, Channel: "C1"}},
		{"reaction channel from item", `{"type":"reaction_added","user":"U1","item":{"channel":"C5"}}`, true,
			sdk.Event{Type: "reaction_added", User: "U1", Channel: "C5"}},
		{"channel object", `{"type":"channel_created","channel":{"id":"C9"}}`, true,
			sdk.Event{Type: "channel_created"}},
		{"ack without type", `{"ok":true,"reply_to":3}`, false, sdk.Event{}},
		{"garbage", `not json`, false, sdk.Event{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := decodeEvent([]byte(tt.frame))
			assert.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			ev.Raw = nil
			assert.Equal(t, tt.want, ev)
		})
	}
}
