package sdk

// Response is the outbound message draft for one plugin invocation.
type Response struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MrkdwnIn    []string     `json:"mrkdwn_in,omitempty"`
}

// Attachment is a rich-content block rendered by the chat client.
type Attachment struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
	Color    string   `json:"color,omitempty"`
	MrkdwnIn []string `json:"mrkdwn_in,omitempty"`
}

// ColorDanger marks an attachment as a failure.
const ColorDanger = "danger"
