package protocol

import (
	"net"
	"sync"

	"github.com/luxfi/log"

	"github.com/lxvenue/matchd/internal/instrument"
	"github.com/lxvenue/matchd/internal/notify"
)

// Server accepts TCP connections and runs one session per connection.
// AUTH eviction — a new login for a clientId that already has a live
// session — is arbitrated here, since it spans two sessions.
type Server struct {
	manager *instrument.Manager
	hub     *notify.Hub
	log     log.Logger

	passkeyHash     []byte
	debugSecretHash []byte

	mu       sync.Mutex
	sessions map[string]*session // clientID -> live session
}

// NewServer wires a Server against manager and hub. passkeyHash and
// debugSecretHash are bcrypt hashes checked by AUTH and DEBUG AUTH.
func NewServer(manager *instrument.Manager, hub *notify.Hub, passkeyHash, debugSecretHash []byte) *Server {
	return &Server{
		manager:         manager,
		hub:             hub,
		log:             log.Root().New("module", "protocol"),
		passkeyHash:     passkeyHash,
		debugSecretHash: debugSecretHash,
		sessions:        make(map[string]*session),
	}
}

// ListenAndServe binds addr and serves connections until the listener
// errors (typically from an external Close during shutdown).
func (srv *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	srv.log.Info("protocol server listening", "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s := newSession(conn, srv)
		go s.serve()
	}
}

// bindSession binds clientID to s, evicting any prior session for the
// same clientId first: a new login for a clientId takes over from
// any session already bound to it.
func (srv *Server) bindSession(clientID string, s *session) {
	srv.mu.Lock()
	prev, existed := srv.sessions[clientID]
	srv.sessions[clientID] = s
	srv.mu.Unlock()

	if existed && prev != s {
		prev.evict()
	}
	s.bind(clientID)
}

// detach clears the session table entry for clientID if s is still
// the registered session, and reports whether it was — an evicted
// session's own close() must not tear down the hub channel or cancel
// the resting orders of the session that replaced it.
func (srv *Server) detach(clientID string, s *session) bool {
	srv.mu.Lock()
	cur, ok := srv.sessions[clientID]
	stillOwner := ok && cur == s
	if stillOwner {
		delete(srv.sessions, clientID)
	}
	srv.mu.Unlock()

	if stillOwner {
		srv.hub.Detach(clientID)
	}
	return stillOwner
}
