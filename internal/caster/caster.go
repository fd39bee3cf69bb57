// Package caster is the protocol front-end (spec component C6): a raw
// TCP accept loop that multiplexes legacy NTRIP 1.0 SOURCE/GET lines
// (not valid HTTP - net/http.Server would reject the SOURCE line
// outright) with NTRIP 2.0's HTTP/1.1 GET/SOURCE requests on one port.
package caster

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ntripcaster/caster/internal/catalog"
	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/ring"
	"github.com/ntripcaster/caster/internal/rtcmmeta"
	"github.com/ntripcaster/caster/internal/sourcetable"
)

// Hooks lets the caller observe connection lifecycle events (metrics,
// admin notifications) without this package depending on them.
type Hooks struct {
	OnUploadConnected    func(mount string)
	OnUploadDisconnected func(mount string)
	OnSubscriberJoined   func(mount, username string)
	OnSubscriberLeft     func(mount, username string)
	OnBytesRelayed       func(mount string, n int)
}

// Config carries the tunables the listener and its handlers need.
type Config struct {
	Addr              string
	Identity          sourcetable.CasterIdentity
	RingBufferSize    int
	MaxUserConnsPer   int
	ClientIdleTimeout time.Duration // carried for callers; the front-end itself does not read it (idle subscribers are dropped by the reaper)
	ChunkedV2         bool
	KeepaliveEnabled  bool
	KeepaliveIdle     time.Duration
}

// Server is the accept loop and request dispatcher.
type Server struct {
	cfg    Config
	store  *catalog.Store
	reg    *registry.Registry
	logger logrus.FieldLogger
	hooks  Hooks

	listener net.Listener

	ringsMu sync.Mutex
	rings   map[string]*ring.Buffer

	parsersMu sync.Mutex
	parsers   map[string]*rtcmmeta.Parser
}

// New constructs a Server. Call ListenAndServe to start accepting
// connections.
func New(cfg Config, store *catalog.Store, reg *registry.Registry, logger logrus.FieldLogger, hooks Hooks) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		reg:     reg,
		logger:  logger,
		hooks:   hooks,
		rings:   make(map[string]*ring.Buffer),
		parsers: make(map[string]*rtcmmeta.Parser),
	}
}

// ListenAndServe opens the TCP listener and accepts connections until
// ctx is canceled or an unrecoverable accept error occurs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("caster: listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.logger.Infof("ntrip caster listening on %s", s.cfg.Addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.WithError(err).Error("accept failed")
				continue
			}
		}
		s.tuneKeepalive(conn)
		go s.handleConnection(ctx, conn)
	}
}

// Close stops the listener, causing ListenAndServe to return.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) tuneKeepalive(conn net.Conn) {
	if !s.cfg.KeepaliveEnabled {
		return
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	if s.cfg.KeepaliveIdle > 0 {
		tc.SetKeepAlivePeriod(s.cfg.KeepaliveIdle)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	req, err := readRequestLine(reader)
	if err != nil {
		s.logger.WithError(err).Debug("failed to read request line")
		return
	}

	headers, err := readHeaders(reader)
	if err != nil {
		s.logger.WithError(err).Debug("failed to read request headers")
		return
	}

	// Legacy SOURCE carries no HTTP version token, so httpMajor stays
	// zero; that's also how we tell it apart from a modern SOURCE line.
	isLegacySource := req.method == "SOURCE" && req.httpMajor == 0

	version := nver.V1
	if !isLegacySource {
		version = nver.Detect(req.httpMinor, req.httpMajor, headers[strings.ToLower(nver.HeaderKey)])
	}

	switch {
	case isLegacySource:
		s.handleLegacySource(ctx, conn, reader, req)
	case req.method == "SOURCE":
		s.handleUpload(ctx, conn, reader, req, headers, version)
	case req.method == "GET" && req.target == "/":
		s.handleSourcetable(conn, headers, version)
	case req.method == "GET":
		s.handleSubscribe(ctx, conn, req, headers, version)
	default:
		// Unreachable: readRequestLine already rejects unknown methods.
	}
}

func (s *Server) ringFor(mount string) *ring.Buffer {
	s.ringsMu.Lock()
	defer s.ringsMu.Unlock()
	rb, ok := s.rings[mount]
	if !ok {
		rb = ring.New(s.cfg.RingBufferSize)
		s.rings[mount] = rb
	}
	return rb
}

func (s *Server) dropRing(mount string) {
	s.ringsMu.Lock()
	defer s.ringsMu.Unlock()
	delete(s.rings, mount)
}

func (s *Server) parserFor(mount string, now time.Time) *rtcmmeta.Parser {
	s.parsersMu.Lock()
	defer s.parsersMu.Unlock()
	p, ok := s.parsers[mount]
	if !ok {
		p = rtcmmeta.New(now)
		s.parsers[mount] = p
	}
	return p
}

func (s *Server) dropParser(mount string) {
	s.parsersMu.Lock()
	defer s.parsersMu.Unlock()
	delete(s.parsers, mount)
}

// Ring implements fanout.RingSource.
func (s *Server) Ring(mount string) (*ring.Buffer, bool) {
	s.ringsMu.Lock()
	defer s.ringsMu.Unlock()
	rb, ok := s.rings[mount]
	return rb, ok
}

// Snapshot implements sourcetable.MountParser.
func (s *Server) Snapshot(mount string) (rtcmmeta.Snapshot, bool) {
	s.parsersMu.Lock()
	p, ok := s.parsers[mount]
	s.parsersMu.Unlock()
	if !ok {
		return rtcmmeta.Snapshot{}, false
	}
	return p.Snapshot(time.Now()), true
}

// Registry exposes the underlying registry, used by the admin surface.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Addr returns the address the server is configured to listen on.
func (s *Server) Addr() string { return s.cfg.Addr }

func newConnectionID() string { return uuid.NewString() }
