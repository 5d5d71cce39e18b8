package relay

import (
	"context"
	"log"

	"github.com/teamtrack/chatrelay/internal/database"
	"github.com/teamtrack/chatrelay/internal/stats"
)

const (
	metricActiveConnections = "ActiveConnections"
	metricActiveRooms       = "ActiveRooms"
	metricMessagesPersisted = "MessagesPersisted"
	metricEventsBroadcast   = "EventsBroadcast"
)

// RelayServer owns the project-to-room registry. The rooms map is mutated
// only from the Run loop goroutine, so no lock guards it.
type RelayServer struct {
	log        *log.Logger
	db         database.ChatRepository
	stats      stats.StatsProvider
	joinChan   chan *joinRequest
	unloadChan chan string
	rooms      map[string]*Room
	stop       chan struct{}
	done       chan struct{}
}

type joinRequest struct {
	client *Client
	done   chan struct{}
}

func NewRelayServer(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider) (*RelayServer, error) {
	rs := &RelayServer{
		log:        logger,
		db:         db,
		stats:      su,
		joinChan:   make(chan *joinRequest, 64),
		unloadChan: make(chan string, 64),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	su.RegisterMetric(metricActiveConnections)
	su.RegisterMetric(metricActiveRooms)
	su.RegisterMetric(metricMessagesPersisted)
	su.RegisterMetric(metricEventsBroadcast)

	return rs, nil
}

// Register admits an authenticated connection to the room for its bound
// project, creating the room if needed. It returns once the client is a
// member, so the caller can safely start the connection's pumps, or false
// if the registry refused the connection.
func (rs *RelayServer) Register(c *Client) bool {
	req := &joinRequest{client: c, done: make(chan struct{})}

	select {
	case rs.joinChan <- req:
	case <-rs.stop:
		c.stopClient()
		return false
	}

	select {
	case <-req.done:
	case <-rs.stop:
		c.stopClient()
		return false
	}

	return !c.stopped()
}

func (rs *RelayServer) Run() {
	for {
		select {
		case req := <-rs.joinChan:
			rs.handleJoin(req)
		case projectId := <-rs.unloadChan:
			rs.handleUnload(projectId)
		case <-rs.stop:
			rs.log.Println("shutting down rooms")
			for _, r := range rs.rooms {
				done := make(chan bool)
				r.exit <- exitReq{force: true, done: done}
				<-done
			}
			rs.rooms = make(map[string]*Room)
			close(rs.done)
			return
		}
	}
}

func (rs *RelayServer) handleJoin(req *joinRequest) {
	c := req.client
	room, ok := rs.rooms[c.projectId]
	if !ok {
		room = newRoom(c.projectId, rs)
		rs.rooms[c.projectId] = room
		go room.run()
		rs.stats.Incr(metricActiveRooms)
		rs.log.Printf("created room for project %q", c.projectId)
	}

	select {
	case room.joinChan <- req:
	default:
		rs.log.Printf("join channel full on room %q, dropping connection", room.projectId)
		c.stopClient()
		close(req.done)
	}
}

// handleUnload tears down a room that reported itself empty. The room
// confirms it is still empty before exiting, so a join that raced the
// unload request wins.
func (rs *RelayServer) handleUnload(projectId string) {
	room, ok := rs.rooms[projectId]
	if !ok {
		return
	}

	done := make(chan bool)
	room.exit <- exitReq{done: done}
	if <-done {
		delete(rs.rooms, projectId)
		rs.stats.Decr(metricActiveRooms)
		rs.log.Printf("unloaded room for project %q", projectId)
	}
}

func (rs *RelayServer) Shutdown(ctx context.Context) error {
	close(rs.stop)

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
