package relay

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"

	"github.com/teamtrack/chatrelay/internal/database"
	"github.com/teamtrack/chatrelay/internal/types"
)

// outcome reports what a handler did with a frame. The protocol has no
// error-response type, so this never reaches the wire; tests use it to tell
// a validation no-op from a store failure.
type outcome int

const (
	outcomeApplied outcome = iota
	outcomeIgnored
	outcomeFailed
)

type exitReq struct {
	force bool
	done  chan bool
}

// Room is the set of live connections for one project. All room state is
// owned by the run goroutine, which serializes handler execution and gives
// broadcasts their in-room ordering.
type Room struct {
	projectId string
	rs        *RelayServer
	log       *log.Logger
	joinChan  chan *joinRequest
	leaveChan chan *Client
	frameChan chan *Frame
	exit      chan exitReq
	clients   map[*Client]struct{}
}

func newRoom(projectId string, rs *RelayServer) *Room {
	return &Room{
		projectId: projectId,
		rs:        rs,
		log:       rs.log,
		joinChan:  make(chan *joinRequest, 256),
		leaveChan: make(chan *Client, 256),
		frameChan: make(chan *Frame, 256),
		exit:      make(chan exitReq, 1),
		clients:   make(map[*Client]struct{}),
	}
}

func (r *Room) run() {
	r.log.Printf("starting room %q", r.projectId)

	for {
		select {
		case req := <-r.joinChan:
			r.handleJoin(req)
		case c := <-r.leaveChan:
			r.handleLeave(c)
		case f := <-r.frameChan:
			r.dispatch(f)
		case e := <-r.exit:
			if r.handleExit(e) {
				return
			}
		}
	}
}

func (r *Room) handleJoin(req *joinRequest) {
	c := req.client
	r.clients[c] = struct{}{}
	c.room = r
	close(req.done)

	r.rs.stats.Incr(metricActiveConnections)
	r.log.Printf("admin %q joined project %q (session %s)", c.userId, r.projectId, c.sessionId)
}

func (r *Room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.stopClient()
	r.rs.stats.Decr(metricActiveConnections)
	r.log.Printf("admin %q left project %q (session %s)", c.userId, r.projectId, c.sessionId)

	if len(r.clients) == 0 {
		r.requestUnload()
	}
}

func (r *Room) requestUnload() {
	select {
	case r.rs.unloadChan <- r.projectId:
	default:
		r.log.Printf("unload channel full, room %q stays loaded", r.projectId)
	}
}

// handleExit returns true when the room goroutine should stop. A non-forced
// exit is refused if clients joined, or are still queued to join, since the
// unload was requested; exiting with a queued join would strand that
// connection with its join request never completed.
func (r *Room) handleExit(e exitReq) bool {
	if !e.force && (len(r.clients) > 0 || len(r.joinChan) > 0) {
		if e.done != nil {
			e.done <- false
		}
		return false
	}

	for c := range r.clients {
		c.stopClient()
		r.rs.stats.Decr(metricActiveConnections)
	}
	r.clients = make(map[*Client]struct{})

	if e.done != nil {
		e.done <- true
	}
	return true
}

func (r *Room) dispatch(f *Frame) {
	var oc outcome
	switch f.Type {
	case FrameMessage:
		oc = r.handleMessage(f)
	case FrameReaction:
		oc = r.handleReaction(f)
	case FramePin:
		oc = r.handlePin(f)
	case FrameRead:
		oc = r.handleRead(f)
	case FrameTyping:
		oc = r.handleTyping(f)
	default:
		oc = outcomeIgnored
	}

	if oc == outcomeFailed {
		r.log.Printf("%s frame from %q failed on project %q", f.Type, f.client.userId, r.projectId)
	}
}

func (r *Room) handleMessage(f *Frame) outcome {
	text := strings.TrimSpace(f.Text)
	if text == "" {
		return outcomeIgnored
	}

	priority := types.Priority(f.Priority)
	if !priority.Valid() {
		priority = types.PriorityNormal
	}

	id, err := shortid.Generate()
	if err != nil {
		r.log.Println("generate message id:", err)
		return outcomeFailed
	}

	now := Now()
	if err := r.rs.db.CreateMessage(database.Message{
		Id:             id,
		ProjectId:      r.projectId,
		SenderId:       f.client.userId,
		Text:           text,
		AttachmentUrl:  f.AttachmentUrl,
		AttachmentName: f.AttachmentName,
		Priority:       string(priority),
		CreatedAt:      now,
	}); err != nil {
		r.log.Println("CreateMessage:", err)
		return outcomeFailed
	}

	r.rs.stats.Incr(metricMessagesPersisted)

	r.broadcast(NewMessageEvent(&types.ChatMessage{
		Id:             id,
		SenderId:       f.client.userId,
		Text:           text,
		AttachmentUrl:  f.AttachmentUrl,
		AttachmentName: f.AttachmentName,
		Priority:       priority,
		ClientId:       f.ClientId,
		TempId:         f.ClientId,
		CreatedAt:      now,
	}))

	return outcomeApplied
}

func (r *Room) handleReaction(f *Frame) outcome {
	if f.MessageId == "" || !allowedEmoji(f.Emoji) {
		return outcomeIgnored
	}

	userId := f.client.userId
	exists, err := r.rs.db.ReactionExists(r.projectId, f.MessageId, userId, f.Emoji)
	if err != nil {
		r.log.Println("ReactionExists:", err)
		return outcomeFailed
	}

	if exists {
		if err := r.rs.db.DeleteReaction(r.projectId, f.MessageId, userId, f.Emoji); err != nil {
			r.log.Println("DeleteReaction:", err)
			return outcomeFailed
		}
		r.broadcast(NewReactionEvent(f.MessageId, f.Emoji, ReactionRemoved, userId))
		return outcomeApplied
	}

	if err := r.rs.db.CreateReaction(database.Reaction{
		Id:        uuid.NewString(),
		ProjectId: r.projectId,
		MessageId: f.MessageId,
		SenderId:  userId,
		Emoji:     f.Emoji,
		CreatedAt: Now(),
	}); err != nil {
		r.log.Println("CreateReaction:", err)
		return outcomeFailed
	}
	r.broadcast(NewReactionEvent(f.MessageId, f.Emoji, ReactionAdded, userId))

	return outcomeApplied
}

func (r *Room) handlePin(f *Frame) outcome {
	if f.MessageId == "" {
		return outcomeIgnored
	}

	userId := f.client.userId
	exists, err := r.rs.db.PinExists(r.projectId, f.MessageId)
	if err != nil {
		r.log.Println("PinExists:", err)
		return outcomeFailed
	}

	if exists {
		if err := r.rs.db.DeletePin(r.projectId, f.MessageId); err != nil {
			r.log.Println("DeletePin:", err)
			return outcomeFailed
		}
		r.broadcast(NewPinEvent(f.MessageId, PinUnpinned, userId))
		return outcomeApplied
	}

	if err := r.rs.db.CreatePin(database.Pin{
		ProjectId: r.projectId,
		MessageId: f.MessageId,
		PinnedBy:  userId,
		CreatedAt: Now(),
	}); err != nil {
		r.log.Println("CreatePin:", err)
		return outcomeFailed
	}
	r.broadcast(NewPinEvent(f.MessageId, PinPinned, userId))

	return outcomeApplied
}

func (r *Room) handleRead(f *Frame) outcome {
	if f.MessageId == "" {
		return outcomeIgnored
	}

	userId := f.client.userId
	if err := r.rs.db.UpsertReadMark(database.ReadMark{
		ProjectId: r.projectId,
		MessageId: f.MessageId,
		UserId:    userId,
		ReadAt:    Now(),
	}); err != nil {
		r.log.Println("UpsertReadMark:", err)
		return outcomeFailed
	}

	// The count must reflect the upsert that just happened, so it is always
	// recomputed from the store. The sender of the message is excluded by
	// the query itself.
	count, err := r.rs.db.CountReaders(r.projectId, f.MessageId)
	if err != nil {
		r.log.Println("CountReaders:", err)
		return outcomeFailed
	}

	r.broadcast(NewReadEvent(f.MessageId, count, userId))

	return outcomeApplied
}

func (r *Room) handleTyping(f *Frame) outcome {
	if f.IsTyping == nil {
		return outcomeIgnored
	}

	event := NewTypingEvent(f.client.userId, *f.IsTyping)
	event.skipClient = f.client
	r.broadcast(event)

	return outcomeApplied
}

// broadcast serializes the event once and queues it on every live
// connection in the room. Stopped connections are skipped silently.
func (r *Room) broadcast(event *ServerEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		r.log.Println("marshal event:", err)
		return
	}

	for c := range r.clients {
		if c == event.skipClient {
			continue
		}
		c.queueEvent(raw)
	}

	r.rs.stats.Incr(metricEventsBroadcast)
}
