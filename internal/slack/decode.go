package slack

import (
	"encoding/json"

	"github.com/EchoPBX/nimbus/pkg/sdk"
)

// decodeEvent turns one RTM frame into an Event. Frames without a type,
// such as replies to our own pings, are ignored.
func decodeEvent(data []byte) (sdk.Event, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return sdk.Event{}, false
	}
	ev := sdk.Event{
		Type:    str(raw["type"]),
		Channel: str(raw["channel"]),
		User:    str(raw["user"]),
		Text:    str(raw["text"]),
		Subtype: str(raw["subtype"]),
		TS:      str(raw["ts"]),
		Raw:     raw,
	}
	if ev.Type == "" {
		return sdk.Event{}, false
	}
	if h, ok := raw["hidden"].(bool); ok {
		ev.Hidden = h
	}
	if ev.Channel == "" {
		if item, ok := raw["item"].(map[string]any); ok {
			ev.Channel = str(item["channel"])
		}
	}
	return ev, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
