package protocol

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/lxvenue/matchd/internal/config"
	"github.com/lxvenue/matchd/internal/matching"
)

// session is one accepted TCP connection. It starts unauthenticated
// (clientID empty) and is bound to a clientId by a successful AUTH,
// which also attaches it to the notify.Hub for async event delivery.
type session struct {
	conn   net.Conn
	server *Server
	log    log.Logger

	writeMu sync.Mutex

	mu            sync.Mutex
	clientID      string
	debugElevated bool
	orders        map[uint64]string // order id -> symbol, for CANC routing

	events   <-chan matching.Event
	stopPump chan struct{}
	pumpOnce sync.Once
}

func newSession(conn net.Conn, srv *Server) *session {
	return &session{
		conn:     conn,
		server:   srv,
		log:      srv.log,
		stopPump: make(chan struct{}),
	}
}

// serve runs the read loop until the socket closes or the session is
// evicted, then performs ClientGone cleanup.
func (s *session) serve() {
	defer s.close()

	reader := bufio.NewReader(s.conn)
	for {
		s.conn.SetReadDeadline(time.Now().Add(config.SessionIdleTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			return // PeerClosed or idle timeout; treated identically
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		s.handleLine(line)
	}
}

func (s *session) close() {
	clientID := s.currentClientID()
	if clientID != "" && s.server.detach(clientID, s) {
		s.server.manager.ClientGone(clientID)
	}
	s.pumpOnce.Do(func() { close(s.stopPump) })
	s.conn.Close()
}

func (s *session) currentClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// bind attaches this session to clientID and starts its event pump.
// Called only from AUTH handling, after any prior session for the
// same clientId has been evicted.
func (s *session) bind(clientID string) {
	s.mu.Lock()
	s.clientID = clientID
	s.mu.Unlock()

	s.events = s.server.hub.Attach(clientID)
	go s.pumpEvents()
}

// pumpEvents drains this session's event channel onto its socket. It
// pulls up to MaxEventsPerFlush events per wakeup before yielding back
// to select, so one session with a deep backlog doesn't starve its own
// write deadline handling under a tight drain loop.
func (s *session) pumpEvents() {
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.writeLine(encodeEvent(ev))
			s.drainUpTo(config.MaxEventsPerFlush - 1)
		case <-s.stopPump:
			return
		}
	}
}

func (s *session) drainUpTo(n int) {
	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.writeLine(encodeEvent(ev))
		default:
			return
		}
	}
}

// evict is called on the previous session for a clientId once a new
// AUTH takes it over. It sends EVICTED then forces the socket closed,
// which unblocks that session's read loop.
func (s *session) evict() {
	s.writeLine("EVICTED")
	s.conn.Close()
}

func (s *session) writeLine(line string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(config.WriteTimeout))
	s.conn.Write([]byte(line))
	s.conn.Write([]byte("\n"))
}
