package relay

import (
	"time"

	"github.com/teamtrack/chatrelay/internal/types"
)

// FrameType identifies one of the five chat operations.
type FrameType string

const (
	FrameMessage  FrameType = "message"
	FrameReaction FrameType = "reaction"
	FramePin      FrameType = "pin"
	FrameRead     FrameType = "read"
	FrameTyping   FrameType = "typing"
)

func (t FrameType) Valid() bool {
	switch t {
	case FrameMessage, FrameReaction, FramePin, FrameRead, FrameTyping:
		return true
	}
	return false
}

// Frame is the common inbound envelope. Only the fields relevant to the
// frame's type are expected to be set; the rest stay zero.
type Frame struct {
	Type           FrameType `json:"type"`
	ProjectId      string    `json:"projectId"`
	Text           string    `json:"text,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	AttachmentUrl  string    `json:"attachmentUrl,omitempty"`
	AttachmentName string    `json:"attachmentName,omitempty"`
	ClientId       string    `json:"clientId,omitempty"`
	MessageId      string    `json:"messageId,omitempty"`
	Emoji          string    `json:"emoji,omitempty"`
	IsTyping       *bool     `json:"isTyping,omitempty"`

	client *Client
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
)

type PinAction string

const (
	PinPinned   PinAction = "pinned"
	PinUnpinned PinAction = "unpinned"
)

// ServerEvent is the outbound envelope fanned out to a room. Count and
// IsTyping are pointers so a zero count and a "stopped typing" signal still
// appear on the wire.
type ServerEvent struct {
	Type      FrameType          `json:"type"`
	Message   *types.ChatMessage `json:"message,omitempty"`
	MessageId string             `json:"messageId,omitempty"`
	Emoji     string             `json:"emoji,omitempty"`
	Action    string             `json:"action,omitempty"`
	Count     *int               `json:"count,omitempty"`
	UserId    string             `json:"userId,omitempty"`
	IsTyping  *bool              `json:"isTyping,omitempty"`

	skipClient *Client
}

func NewMessageEvent(msg *types.ChatMessage) *ServerEvent {
	return &ServerEvent{
		Type:    FrameMessage,
		Message: msg,
	}
}

func NewReactionEvent(messageId, emoji string, action ReactionAction, userId string) *ServerEvent {
	return &ServerEvent{
		Type:      FrameReaction,
		MessageId: messageId,
		Emoji:     emoji,
		Action:    string(action),
		UserId:    userId,
	}
}

func NewPinEvent(messageId string, action PinAction, userId string) *ServerEvent {
	return &ServerEvent{
		Type:      FramePin,
		MessageId: messageId,
		Action:    string(action),
		UserId:    userId,
	}
}

func NewReadEvent(messageId string, count int, userId string) *ServerEvent {
	return &ServerEvent{
		Type:      FrameRead,
		MessageId: messageId,
		Count:     &count,
		UserId:    userId,
	}
}

func NewTypingEvent(userId string, isTyping bool) *ServerEvent {
	return &ServerEvent{
		Type:     FrameTyping,
		UserId:   userId,
		IsTyping: &isTyping,
	}
}

var allowedEmojis = map[string]struct{}{
	"👍":  {},
	"🔥":  {},
	"✅":  {},
	"❤️": {},
	"😂":  {},
	"🎉":  {},
}

func allowedEmoji(emoji string) bool {
	_, ok := allowedEmojis[emoji]
	return ok
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
