package types

import (
	"time"
)

// Priority marks how a chat message should be surfaced in the client UI.
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityImportant Priority = "important"
	PriorityUrgent    Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityImportant, PriorityUrgent:
		return true
	}
	return false
}

// ChatMessage is the wire representation of a persisted message. TempId
// mirrors ClientId so the originating client can reconcile its optimistic
// local copy with the canonical server copy.
type ChatMessage struct {
	Id             string    `json:"id"`
	SenderId       string    `json:"senderId"`
	Text           string    `json:"text"`
	AttachmentUrl  string    `json:"attachmentUrl,omitempty"`
	AttachmentName string    `json:"attachmentName,omitempty"`
	Priority       Priority  `json:"priority"`
	ClientId       string    `json:"clientId,omitempty"`
	TempId         string    `json:"tempId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReactionAggregate is one emoji tally on a message, as returned by the
// snapshot endpoint. Mine is true when the requesting user authored one of
// the counted reactions.
type ReactionAggregate struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Mine  bool   `json:"mine"`
}
