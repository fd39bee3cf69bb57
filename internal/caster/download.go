package caster

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/ntripcaster/caster/internal/ntriperr"
	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/sourcetable"
)

// handleSourcetable serves GET / in the wire format the connecting
// client's negotiated version expects.
func (s *Server) handleSourcetable(conn net.Conn, headers map[string]string, version nver.Version) {
	w := bufio.NewWriter(conn)
	table := sourcetable.Build(s.cfg.Identity, s.reg, s)
	body := table.String()

	if version == nver.V2 {
		writeSourcetableV2(w, body)
		return
	}
	writeSourcetableV1(w, body)
}

// handleSubscribe services a GET request for a specific mount - NTRIP
// 1.0's and 2.0's download path.
func (s *Server) handleSubscribe(ctx context.Context, conn net.Conn, req requestLine, headers map[string]string, version nver.Version) {
	w := bufio.NewWriter(conn)
	mount := strings.TrimPrefix(req.target, "/")

	username, password, _ := basicAuth(headers["authorization"])

	if err := s.store.VerifyDownload(mount, username, password, "", version); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{"mount": mount, "username": username}).Info("rejected subscribe request")
		if version == nver.V2 {
			writeHTTPStatus(w, httpStatusFor(err), httpReasonFor(err), mount, authKind(err) == ntriperr.KindAuthFailed)
		} else {
			writeV1Error(w, uploadErrorMessage(err))
		}
		return
	}

	now := time.Now()
	sub := &registry.UserConnection{
		ConnectionID:      newConnectionID(),
		Username:          username,
		Mount:             mount,
		PeerAddr:          conn.RemoteAddr().String(),
		Agent:             headers["user-agent"],
		ProtocolVersion:   version,
		ConnectTime:       now,
		LastActivity:      now,
		// Watermark starts 5s before connect time so a subscriber that
		// joins right after an upload write still gets that buffered
		// tail instead of missing it.
		LastSentTimestamp: now.Add(-5 * time.Second),
	}
	evicted := s.reg.AddUser(sub, conn)
	if evicted != nil {
		if c := evicted.Conn(); c != nil {
			c.Close()
		}
	}

	if version == nver.V2 {
		writeV2SubscribeHeaders(w, s.cfg.ChunkedV2)
	} else {
		writeICYOk(w)
	}

	if s.hooks.OnSubscriberJoined != nil {
		s.hooks.OnSubscriberJoined(mount, username)
	}
	defer func() {
		s.reg.RemoveUser(sub.ConnectionID)
		if s.hooks.OnSubscriberLeft != nil {
			s.hooks.OnSubscriberLeft(mount, username)
		}
	}()

	// The fanout engine pushes data to sub.Conn() independently; this
	// goroutine's only remaining job is to notice when the client goes
	// away so the registry entry doesn't linger until the reaper's
	// sweep catches up.
	drainUntilClosed(ctx, conn)
}

func drainUntilClosed(ctx context.Context, conn net.Conn) {
	buf := make([]byte, 512)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}
