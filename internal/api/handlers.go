package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teamtrack/chatrelay/internal/database"
	"github.com/teamtrack/chatrelay/internal/relay"
	"github.com/teamtrack/chatrelay/internal/types"
)

// closeUnauthorized is the close code used for both authentication and
// authorization failures, so a refused connection does not reveal whether
// the credential or the role was the problem.
const closeUnauthorized = 4401

type SnapshotResponse struct {
	Messages   []types.ChatMessage                  `json:"messages"`
	Reactions  map[string][]types.ReactionAggregate `json:"reactions"`
	PinnedIds  []string                             `json:"pinnedIds"`
	ReadCounts map[string]int                       `json:"readCounts"`
}

func (s *ChatRelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// getSnapshot returns the bootstrap state a client merges with live events:
// the most recent messages oldest-first, aggregated reactions, pinned
// message ids and per-message read counts.
func (s *ChatRelayApp) getSnapshot(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	projectId := r.URL.Query().Get("project_id")
	if projectId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	role, err := s.members.Role(projectId, userId)
	if err != nil || role != RoleAdmin {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.log.Printf("membership lookup for user %q on project %q: %v", userId, projectId, err)
		}
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbMessages, err := s.db.ListRecentMessages(projectId, s.snapshotLimit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// ListRecentMessages returns newest-first; clients render oldest-first.
	slices.Reverse(dbMessages)

	messages := make([]types.ChatMessage, len(dbMessages))
	messageIds := make([]string, len(dbMessages))
	for i, msg := range dbMessages {
		messages[i] = types.ChatMessage{
			Id:             msg.Id,
			SenderId:       msg.SenderId,
			Text:           msg.Text,
			AttachmentUrl:  msg.AttachmentUrl,
			AttachmentName: msg.AttachmentName,
			Priority:       types.Priority(msg.Priority),
			CreatedAt:      msg.CreatedAt,
		}
		messageIds[i] = msg.Id
	}

	dbReactions, err := s.db.ListReactions(projectId, messageIds)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pinnedIds, err := s.db.ListPinnedIds(projectId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	readCounts, err := s.db.ReadCounts(projectId, messageIds)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if pinnedIds == nil {
		pinnedIds = []string{}
	}

	s.writeJson(w, http.StatusOK, SnapshotResponse{
		Messages:   messages,
		Reactions:  aggregateReactions(dbReactions, userId),
		PinnedIds:  pinnedIds,
		ReadCounts: readCounts,
	})
}

// aggregateReactions folds raw reaction rows into per-message emoji
// tallies, flagging the ones the requesting user authored.
func aggregateReactions(reactions []database.Reaction, userId string) map[string][]types.ReactionAggregate {
	aggregated := make(map[string][]types.ReactionAggregate)
	for _, reaction := range reactions {
		tallies := aggregated[reaction.MessageId]

		idx := slices.IndexFunc(tallies, func(a types.ReactionAggregate) bool {
			return a.Emoji == reaction.Emoji
		})
		if idx < 0 {
			tallies = append(tallies, types.ReactionAggregate{Emoji: reaction.Emoji})
			idx = len(tallies) - 1
		}

		tallies[idx].Count++
		if reaction.SenderId == userId {
			tallies[idx].Mine = true
		}

		aggregated[reaction.MessageId] = tallies
	}

	return aggregated
}

// serveWs is the connection gateway. The credential and project id travel
// in the query string because a websocket handshake carries no body; the
// connection is upgraded first so refusals can use close codes.
func (s *ChatRelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	projectId := r.URL.Query().Get("projectId")
	token := r.URL.Query().Get("token")
	if projectId == "" || token == "" {
		s.refuseConn(conn, websocket.ClosePolicyViolation, "missing projectId or token")
		return
	}

	userId, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Printf("refusing connection: %v", err)
		s.refuseConn(conn, closeUnauthorized, "unauthorized")
		return
	}

	role, err := s.members.Role(projectId, userId)
	if err != nil || role != RoleAdmin {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.log.Printf("membership lookup for user %q on project %q: %v", userId, projectId, err)
		}
		s.refuseConn(conn, closeUnauthorized, "unauthorized")
		return
	}

	client := relay.NewClient(userId, projectId, conn, s.relay, s.log)
	if !s.relay.Register(client) {
		s.log.Printf("registry refused connection for user %q on project %q", userId, projectId)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

func (s *ChatRelayApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check failed: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatRelayApp) refuseConn(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		s.log.Println("write close message:", err)
	}
	conn.Close()
}
