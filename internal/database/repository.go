package database

type ChatRepository interface {
	Ping() error
	GetProjectRole(projectId, userId string) (string, error)
	CreateMessage(msg Message) error
	ListRecentMessages(projectId string, limit int) ([]Message, error)
	ReactionExists(projectId, messageId, senderId, emoji string) (bool, error)
	CreateReaction(reaction Reaction) error
	DeleteReaction(projectId, messageId, senderId, emoji string) error
	ListReactions(projectId string, messageIds []string) ([]Reaction, error)
	PinExists(projectId, messageId string) (bool, error)
	CreatePin(pin Pin) error
	DeletePin(projectId, messageId string) error
	ListPinnedIds(projectId string) ([]string, error)
	UpsertReadMark(mark ReadMark) error
	CountReaders(projectId, messageId string) (int, error)
	ReadCounts(projectId string, messageIds []string) (map[string]int, error)
}
