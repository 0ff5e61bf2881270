package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/puckline/puckline/audit"
	"github.com/puckline/puckline/sym"
)

const (
	auditTailInterval = 2 * time.Second
	auditWriteWait    = 10 * time.Second
	clientSendBuffer  = 64
)

// auditClient is one connected WebSocket subscriber of the audit tail.
type auditClient struct {
	conn      *websocket.Conn
	send      chan audit.Entry
	closeOnce sync.Once
}

func (c *auditClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// handleAuditTail upgrades the connection and streams new audit
// entries as JSON messages until the client disconnects.
func (s *Server) handleAuditTail(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("Audit tail upgrade failed",
			"symbol", sym.Audit,
			"remote", r.RemoteAddr,
			"error", err,
		)
		return
	}

	client := &auditClient{
		conn: conn,
		send: make(chan audit.Entry, clientSendBuffer),
	}

	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	s.logger.Infow("Audit tail subscriber connected",
		"symbol", sym.Audit,
		"remote", r.RemoteAddr,
	)

	s.wg.Add(2)
	go s.auditWritePump(client)
	go s.auditReadPump(client, r.RemoteAddr)
}

// auditWritePump drains the client's send channel onto the socket.
func (s *Server) auditWritePump(c *auditClient) {
	defer s.wg.Done()
	for entry := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(auditWriteWait))
		if err := c.conn.WriteJSON(entry); err != nil {
			s.removeClient(c)
			return
		}
	}
}

// auditReadPump exists only to detect disconnects; the tail is
// one-directional and inbound messages are discarded.
func (s *Server) auditReadPump(c *auditClient, remote string) {
	defer s.wg.Done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.logger.Debugw("Audit tail subscriber disconnected",
				"symbol", sym.Audit,
				"remote", remote,
			)
			s.removeClient(c)
			return
		}
	}
}

func (s *Server) removeClient(c *auditClient) {
	s.clientsMu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
	s.clientsMu.Unlock()
}

// auditTailLoop polls the audit log for entries appended since the
// last poll and fans them out to all subscribers. Polling keeps the
// store free of broadcast hooks; the log itself stays the only
// ordering authority.
func (s *Server) auditTailLoop() {
	defer s.wg.Done()

	// Tail from the newest existing entry; subscribers only see what
	// happens after they connect.
	var lastSeq int64
	if newest, err := s.auditStore.Query(s.ctx, audit.Filter{Limit: 1}); err != nil {
		s.logger.Warnw("Audit tail seeded from zero",
			"symbol", sym.Audit,
			"error", err,
		)
	} else if len(newest) > 0 {
		lastSeq = newest[0].Seq
	}

	ticker := time.NewTicker(auditTailInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.clientsMu.Lock()
		subscribers := len(s.clients)
		s.clientsMu.Unlock()
		if subscribers == 0 {
			continue
		}

		entries, err := s.auditStore.Query(s.ctx, audit.Filter{AfterSeq: lastSeq})
		if err != nil {
			s.logger.Errorw("Audit tail poll failed",
				"symbol", sym.Audit,
				"error", err,
			)
			continue
		}

		for _, entry := range entries {
			if entry.Seq > lastSeq {
				lastSeq = entry.Seq
			}
			s.broadcast(entry)
		}
	}
}

func (s *Server) broadcast(entry audit.Entry) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- entry:
		default:
			// Slow consumer; drop the connection rather than block the tail.
			delete(s.clients, c)
			c.close()
		}
	}
}
