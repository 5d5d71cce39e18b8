package database

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

func (db *PgChatRepository) GetProjectRole(projectId, userId string) (string, error) {
	row := db.conn.QueryRow(
		"SELECT role FROM project_members "+
			"WHERE project_id = $1 AND user_id = $2 LIMIT 1",
		projectId,
		userId,
	)

	var role string
	err := row.Scan(&role)

	return role, err
}

func (db *PgChatRepository) CreateMessage(msg Message) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_messages (id, project_id, sender_id, content, attachment_url, attachment_name, priority, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		msg.Id,
		msg.ProjectId,
		msg.SenderId,
		msg.Text,
		nullString(msg.AttachmentUrl),
		nullString(msg.AttachmentName),
		msg.Priority,
		msg.CreatedAt,
	)

	return err
}

func (db *PgChatRepository) ListRecentMessages(projectId string, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, project_id, sender_id, content, attachment_url, attachment_name, priority, created_at FROM chat_messages "+
			"WHERE project_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		projectId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) ReactionExists(projectId, messageId, senderId, emoji string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM chat_reactions "+
			"WHERE project_id = $1 AND message_id = $2 AND sender_id = $3 AND emoji = $4)",
		projectId,
		messageId,
		senderId,
		emoji,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgChatRepository) CreateReaction(reaction Reaction) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_reactions (id, project_id, message_id, sender_id, emoji, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		reaction.Id,
		reaction.ProjectId,
		reaction.MessageId,
		reaction.SenderId,
		reaction.Emoji,
		reaction.CreatedAt,
	)

	return err
}

func (db *PgChatRepository) DeleteReaction(projectId, messageId, senderId, emoji string) error {
	_, err := db.conn.Exec(
		"DELETE FROM chat_reactions "+
			"WHERE project_id = $1 AND message_id = $2 AND sender_id = $3 AND emoji = $4",
		projectId,
		messageId,
		senderId,
		emoji,
	)

	return err
}

func (db *PgChatRepository) ListReactions(projectId string, messageIds []string) ([]Reaction, error) {
	rows, err := db.conn.Query(
		"SELECT id, project_id, message_id, sender_id, emoji, created_at FROM chat_reactions "+
			"WHERE project_id = $1 AND message_id = ANY($2) ORDER BY created_at",
		projectId,
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.Id, &r.ProjectId, &r.MessageId, &r.SenderId, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}

func (db *PgChatRepository) PinExists(projectId, messageId string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM chat_pins WHERE project_id = $1 AND message_id = $2)",
		projectId,
		messageId,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgChatRepository) CreatePin(pin Pin) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_pins (project_id, message_id, pinned_by, created_at) "+
			"VALUES ($1, $2, $3, $4)",
		pin.ProjectId,
		pin.MessageId,
		pin.PinnedBy,
		pin.CreatedAt,
	)

	return err
}

func (db *PgChatRepository) DeletePin(projectId, messageId string) error {
	_, err := db.conn.Exec(
		"DELETE FROM chat_pins WHERE project_id = $1 AND message_id = $2",
		projectId,
		messageId,
	)

	return err
}

func (db *PgChatRepository) ListPinnedIds(projectId string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT message_id FROM chat_pins WHERE project_id = $1 ORDER BY created_at",
		projectId,
	)
	if err != nil {
		return nil, fmt.Errorf("list pinned ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pinned id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *PgChatRepository) UpsertReadMark(mark ReadMark) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_read_marks (project_id, message_id, user_id, read_at) "+
			"VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (project_id, message_id, user_id) DO UPDATE SET read_at = EXCLUDED.read_at",
		mark.ProjectId,
		mark.MessageId,
		mark.UserId,
		mark.ReadAt,
	)

	return err
}

// CountReaders returns the number of distinct users who marked the message
// as read, never counting the message's own sender.
func (db *PgChatRepository) CountReaders(projectId, messageId string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(DISTINCT rm.user_id) FROM chat_read_marks rm "+
			"JOIN chat_messages m ON m.project_id = rm.project_id AND m.id = rm.message_id "+
			"WHERE rm.project_id = $1 AND rm.message_id = $2 AND rm.user_id <> m.sender_id",
		projectId,
		messageId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

func (db *PgChatRepository) ReadCounts(projectId string, messageIds []string) (map[string]int, error) {
	rows, err := db.conn.Query(
		"SELECT rm.message_id, COUNT(DISTINCT rm.user_id) FROM chat_read_marks rm "+
			"JOIN chat_messages m ON m.project_id = rm.project_id AND m.id = rm.message_id "+
			"WHERE rm.project_id = $1 AND rm.message_id = ANY($2) AND rm.user_id <> m.sender_id "+
			"GROUP BY rm.message_id",
		projectId,
		pq.Array(messageIds),
	)
	if err != nil {
		return nil, fmt.Errorf("read counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan read count: %w", err)
		}
		counts[id] = count
	}

	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg            Message
		attachmentUrl  sql.NullString
		attachmentName sql.NullString
	)

	err := row.Scan(
		&msg.Id,
		&msg.ProjectId,
		&msg.SenderId,
		&msg.Text,
		&attachmentUrl,
		&attachmentName,
		&msg.Priority,
		&msg.CreatedAt,
	)

	msg.AttachmentUrl = attachmentUrl.String
	msg.AttachmentName = attachmentName.String

	return msg, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
