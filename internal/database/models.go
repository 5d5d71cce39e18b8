package database

import "time"

type Message struct {
	Id             string
	ProjectId      string
	SenderId       string
	Text           string
	AttachmentUrl  string
	AttachmentName string
	Priority       string
	CreatedAt      time.Time
}

type Reaction struct {
	Id        string
	ProjectId string
	MessageId string
	SenderId  string
	Emoji     string
	CreatedAt time.Time
}

type Pin struct {
	ProjectId string
	MessageId string
	PinnedBy  string
	CreatedAt time.Time
}

type ReadMark struct {
	ProjectId string
	MessageId string
	UserId    string
	ReadAt    time.Time
}
