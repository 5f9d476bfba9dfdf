// Package slack connects to the Slack RTM API.
package slack

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/EchoPBX/nimbus/internal/config"
	"github.com/EchoPBX/nimbus/pkg/sdk"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("slack: connection closed")

const (
	eventBuffer    = 1024
	maxBatch       = 256
	reconnectDelay = 2 * time.Second
	pingInterval   = 30 * time.Second
)

// Self identifies the authenticated bot user.
type Self struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	cfg    *config.Config
	log    *zap.Logger
	http   *http.Client
	dialer websocket.Dialer
	events chan sdk.Event
	fake   bool

	mu     sync.Mutex // guards conn and writes to it
	conn   *websocket.Conn
	self   Self
	pingID int

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		log:  log.With(zap.String("component", "slack")),
		http: &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: cfg.Slack.Insecure},
		},
		events: make(chan sdk.Event, eventBuffer),
		fake:   cfg.Slack.Fake,
		closed: make(chan struct{}),
	}
}

// Connect authenticates and opens the RTM websocket.
func (c *Client) Connect(ctx context.Context) error {
	if c.fake {
		c.log.Info("fake mode, not connecting to slack")
		return nil
	}
	if err := c.dial(ctx); err != nil {
		return fmt.Errorf("can't connect to slack: %w", err)
	}
	c.log.Info("successfully authenticated with slack", zap.String("user", c.self.Name))
	return nil
}

func (c *Client) Self() Self {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Client) dial(ctx context.Context) error {
	var resp struct {
		URL  string `json:"url"`
		Self Self   `json:"self"`
	}
	if err := c.call(ctx, "rtm.connect", url.Values{}, &resp); err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, resp.URL, http.Header{"User-Agent": {"nimbus"}})
	if err != nil {
		return fmt.Errorf("dial rtm: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.self = resp.Self
	c.mu.Unlock()
	return nil
}

// Run reads events until ctx is cancelled or Close is called, reconnecting
// whenever the socket drops.
func (c *Client) Run(ctx context.Context) {
	if c.fake {
		c.runFake(ctx)
		return
	}
	go c.keepalive(ctx)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.read(conn)
			_ = conn.Close()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			case <-time.After(reconnectDelay):
			}
			if err := c.dial(ctx); err != nil {
				c.log.Warn("rtm reconnect failed", zap.Error(err))
				continue
			}
			c.log.Info("rtm reconnected")
			break
		}
	}
}

func (c *Client) read(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Warn("rtm read", zap.Error(err))
			}
			return
		}
		ev, ok := decodeEvent(data)
		if !ok {
			continue
		}
		c.enqueue(ev)
	}
}

func (c *Client) enqueue(ev sdk.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping event", zap.String("type", ev.Type))
	}
}

func (c *Client) keepalive(ctx context.Context) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-t.C:
			c.mu.Lock()
			if c.conn != nil {
				c.pingID++
				if err := c.conn.WriteJSON(map[string]any{"id": c.pingID, "type": "ping"}); err != nil {
					c.log.Debug("rtm ping", zap.Error(err))
				}
			}
			c.mu.Unlock()
		}
	}
}

// Poll returns the events received since the last call, possibly none.
func (c *Client) Poll(ctx context.Context) ([]sdk.Event, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	var out []sdk.Event
	for len(out) < maxBatch {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out, nil
		}
	}
	return out, nil
}

// Post sends one message through chat.postMessage.
func (c *Client) Post(ctx context.Context, resp *sdk.Response) error {
	if c.fake {
		c.log.Info("post", zap.Any("response", resp))
		return nil
	}
	form := url.Values{}
	set := func(k, v string) {
		if v != "" {
			form.Set(k, v)
		}
	}
	set("channel", resp.Channel)
	set("username", resp.Username)
	set("icon_emoji", resp.IconEmoji)
	set("text", resp.Text)
	if len(resp.Attachments) > 0 {
		b, err := json.Marshal(resp.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		form.Set("attachments", string(b))
	}
	if len(resp.MrkdwnIn) > 0 {
		b, _ := json.Marshal(resp.MrkdwnIn)
		form.Set("mrkdwn_in", string(b))
	}
	return c.call(ctx, "chat.postMessage", form, nil)
}

// call invokes a Web API method and decodes the reply into out.
func (c *Client) call(ctx context.Context, method string, form url.Values, out any) error {
	endpoint := strings.TrimRight(c.cfg.Slack.APIURL, "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", method, res.Status)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	var status struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if !status.OK {
		return fmt.Errorf("%s: %s", method, status.Error)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *Client) runFake(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case ts := <-t.C:
			c.enqueue(sdk.Event{
				Type:    sdk.EventTypeMessage,
				Channel: "CFAKE",
				User:    "UFAKE",
				Text:    c.cfg.CommandPrefix + "uptime",
				TS:      fmt.Sprintf("%d.000000", ts.Unix()),
			})
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
