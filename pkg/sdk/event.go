package sdk

// Well-known event discriminators and subtypes.
const (
	EventTypeMessage  = "message"
	SubtypeBotMessage = "bot_message"
)

// Event is one inbound occurrence from the chat service.
type Event struct {
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	User    string         `json:"user,omitempty"`
	Text    string         `json:"text,omitempty"`
	Subtype string         `json:"subtype,omitempty"`
	Hidden  bool           `json:"hidden,omitempty"`
	TS      string         `json:"ts,omitempty"`
	Raw     map[string]any `json:"-"`
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	c := e
	if e.Raw != nil {
		c.Raw = cloneValue(e.Raw).(map[string]any)
	}
	return c
}

// cloneValue deep-copies the shapes produced by decoding JSON into any.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, x := range v {
			m[k] = cloneValue(x)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, x := range v {
			s[i] = cloneValue(x)
		}
		return s
	default:
		return v
	}
}

// CommandEvent is a message event matched to a command trigger.
type CommandEvent struct {
	Event
	Trigger string
	Args    []string
}
