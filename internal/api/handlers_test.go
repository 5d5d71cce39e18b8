package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/teamtrack/chatrelay/internal/config"
	"github.com/teamtrack/chatrelay/internal/database"
	"github.com/teamtrack/chatrelay/internal/relay"
	"github.com/teamtrack/chatrelay/internal/stats"
	"github.com/teamtrack/chatrelay/internal/testutil"
	"github.com/teamtrack/chatrelay/internal/types"
)

// newTestApp wires a ChatRelayApp with mocked verifier and membership
// authority so handlers can be exercised without real tokens or a database.
func newTestApp(t *testing.T, db database.ChatRepository) (*ChatRelayApp, *MockTokenVerifier, *MockMembershipAuthority) {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Times(4)
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()

	logger := testutil.TestLogger(t)
	rs, err := relay.NewRelayServer(logger, db, su)
	if err != nil {
		t.Fatalf("failed to create relay server: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:    "localhost:0",
		DatabaseDSN:   "postgres://localhost/test",
		SigningKey:    []byte("test-signing-key"),
		SnapshotLimit: config.DefaultSnapshotLimit,
	}

	app := NewChatRelayApp(http.NewServeMux(), logger, rs, db, cfg)

	verifier := &MockTokenVerifier{}
	members := &MockMembershipAuthority{}
	app.verifier = verifier
	app.members = members

	return app, verifier, members
}

func TestHealthCheck(t *testing.T) {
	tt := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthy",
			wantStatus: http.StatusOK,
			wantBody:   "OK",
		},
		{
			name:       "database unreachable",
			pingErr:    errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			db.On("Ping").Return(tc.pingErr).Once()

			app, _, _ := newTestApp(t, db)

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			app.healthCheck(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, rec.Body.String())
			}
		})
	}
}

func TestGetSnapshot(t *testing.T) {
	t.Run("returns messages oldest-first with aggregates", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		created := time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)
		db.On("ListRecentMessages", "project-1", config.DefaultSnapshotLimit).Return([]database.Message{
			{Id: "m2", ProjectId: "project-1", SenderId: "bob", Text: "newer", Priority: "normal", CreatedAt: created.Add(time.Minute)},
			{Id: "m1", ProjectId: "project-1", SenderId: "alice", Text: "older", Priority: "urgent", CreatedAt: created},
		}, nil).Once()
		db.On("ListReactions", "project-1", []string{"m1", "m2"}).Return([]database.Reaction{
			{Id: "r1", MessageId: "m1", SenderId: "alice", Emoji: "👍"},
			{Id: "r2", MessageId: "m1", SenderId: "bob", Emoji: "👍"},
			{Id: "r3", MessageId: "m2", SenderId: "bob", Emoji: "🔥"},
		}, nil).Once()
		db.On("ListPinnedIds", "project-1").Return([]string(nil), nil).Once()
		db.On("ReadCounts", "project-1", []string{"m1", "m2"}).Return(map[string]int{"m1": 1}, nil).Once()

		app, _, members := newTestApp(t, db)
		defer members.AssertExpectations(t)
		members.On("Role", "project-1", "alice").Return(RoleAdmin, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot?project_id=project-1", nil)
		req = req.WithContext(WithUserId(req.Context(), "alice"))
		rec := httptest.NewRecorder()
		app.getSnapshot(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp SnapshotResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		if assert.Len(t, resp.Messages, 2, "expected both messages") {
			assert.Equal(t, "m1", resp.Messages[0].Id, "expected oldest message first")
			assert.Equal(t, "m2", resp.Messages[1].Id)
			assert.Equal(t, types.PriorityUrgent, resp.Messages[0].Priority)
		}

		if assert.Len(t, resp.Reactions["m1"], 1, "expected a single tally for m1") {
			tally := resp.Reactions["m1"][0]
			assert.Equal(t, "👍", tally.Emoji)
			assert.Equal(t, 2, tally.Count)
			assert.True(t, tally.Mine, "expected alice's own reaction to be flagged")
		}
		if assert.Len(t, resp.Reactions["m2"], 1) {
			assert.False(t, resp.Reactions["m2"][0].Mine)
		}

		assert.Equal(t, []string{}, resp.PinnedIds, "expected empty slice, not null")
		assert.Equal(t, map[string]int{"m1": 1}, resp.ReadCounts)
	})

	t.Run("missing project_id", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app, _, _ := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
		req = req.WithContext(WithUserId(req.Context(), "alice"))
		rec := httptest.NewRecorder()
		app.getSnapshot(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing user id in context", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app, _, _ := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot?project_id=project-1", nil)
		rec := httptest.NewRecorder()
		app.getSnapshot(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-admin member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		app, _, members := newTestApp(t, db)
		defer members.AssertExpectations(t)
		members.On("Role", "project-1", "alice").Return("viewer", nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot?project_id=project-1", nil)
		req = req.WithContext(WithUserId(req.Context(), "alice"))
		rec := httptest.NewRecorder()
		app.getSnapshot(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		db.AssertNotCalled(t, "ListRecentMessages", mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("ListRecentMessages", "project-1", config.DefaultSnapshotLimit).
			Return([]database.Message(nil), errors.New("db down")).Once()

		app, _, members := newTestApp(t, db)
		members.On("Role", "project-1", "alice").Return(RoleAdmin, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot?project_id=project-1", nil)
		req = req.WithContext(WithUserId(req.Context(), "alice"))
		rec := httptest.NewRecorder()
		app.getSnapshot(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("passes the verified user id downstream", func(t *testing.T) {
		app, verifier, _ := newTestApp(t, &database.MockChatRepository{})
		defer verifier.AssertExpectations(t)
		verifier.On("Verify", "good-token").Return("alice", nil).Once()

		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			userId, ok := UserId(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "alice", userId)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	})

	t.Run("missing header", func(t *testing.T) {
		app, _, _ := newTestApp(t, &database.MockChatRepository{})

		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be reached")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected token", func(t *testing.T) {
		app, verifier, _ := newTestApp(t, &database.MockChatRepository{})
		verifier.On("Verify", "bad-token").Return("", errors.New("invalid token")).Once()

		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not be reached")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func dialWs(t *testing.T, serverURL, query string) (*websocket.Conn, error) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, err
}

func expectClose(t *testing.T, conn *websocket.Conn, wantCode int) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if assert.ErrorAs(t, err, &closeErr, "expected a close frame") {
		assert.Equal(t, wantCode, closeErr.Code)
	}
}

func TestServeWs(t *testing.T) {
	t.Run("missing parameters", func(t *testing.T) {
		app, _, _ := newTestApp(t, &database.MockChatRepository{})
		server := httptest.NewServer(http.HandlerFunc(app.serveWs))
		defer server.Close()

		conn, err := dialWs(t, server.URL, "projectId=project-1")
		assert.NoError(t, err, "expected handshake to succeed before refusal")
		expectClose(t, conn, websocket.ClosePolicyViolation)
	})

	t.Run("rejected token", func(t *testing.T) {
		app, verifier, _ := newTestApp(t, &database.MockChatRepository{})
		verifier.On("Verify", "bad-token").Return("", errors.New("invalid token")).Once()

		server := httptest.NewServer(http.HandlerFunc(app.serveWs))
		defer server.Close()

		conn, err := dialWs(t, server.URL, "projectId=project-1&token=bad-token")
		assert.NoError(t, err)
		expectClose(t, conn, closeUnauthorized)
	})

	t.Run("non-admin member", func(t *testing.T) {
		app, verifier, members := newTestApp(t, &database.MockChatRepository{})
		verifier.On("Verify", "good-token").Return("alice", nil).Once()
		members.On("Role", "project-1", "alice").Return("viewer", nil).Once()

		server := httptest.NewServer(http.HandlerFunc(app.serveWs))
		defer server.Close()

		conn, err := dialWs(t, server.URL, "projectId=project-1&token=good-token")
		assert.NoError(t, err)
		expectClose(t, conn, closeUnauthorized)
	})

	t.Run("admitted connection relays a message", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("CreateMessage", mock.MatchedBy(func(msg database.Message) bool {
			return msg.ProjectId == "project-1" && msg.SenderId == "alice" && msg.Text == "hello"
		})).Return(nil).Once()

		app, verifier, members := newTestApp(t, db)
		verifier.On("Verify", "good-token").Return("alice", nil).Once()
		members.On("Role", "project-1", "alice").Return(RoleAdmin, nil).Once()

		go app.relay.Run()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			app.relay.Shutdown(ctx)
		}()

		server := httptest.NewServer(http.HandlerFunc(app.serveWs))
		defer server.Close()

		conn, err := dialWs(t, server.URL, "projectId=project-1&token=good-token")
		assert.NoError(t, err, "expected handshake to succeed")

		err = conn.WriteJSON(map[string]any{
			"type":      "message",
			"projectId": "project-1",
			"text":      "hello",
			"clientId":  "local-1",
		})
		assert.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event struct {
			Type    string            `json:"type"`
			Message types.ChatMessage `json:"message"`
		}
		err = conn.ReadJSON(&event)
		assert.NoError(t, err, "expected the broadcast to reach the sender")
		assert.Equal(t, "message", event.Type)
		assert.Equal(t, "hello", event.Message.Text)
		assert.Equal(t, "alice", event.Message.SenderId)
		assert.Equal(t, "local-1", event.Message.ClientId)
		assert.Equal(t, "local-1", event.Message.TempId)
		assert.NotEmpty(t, event.Message.Id)

		db.AssertExpectations(t)
	})
}
