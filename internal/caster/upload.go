package caster

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/ntriperr"
	"github.com/ntripcaster/caster/internal/registry"
)

// handleLegacySource services a "SOURCE <password> <mount>" connection -
// NTRIP 1.0's upload path.
func (s *Server) handleLegacySource(ctx context.Context, conn net.Conn, reader *bufio.Reader, req requestLine) {
	w := bufio.NewWriter(conn)

	if err := s.store.VerifyUpload(req.target, req.password); err != nil {
		s.logger.WithError(err).WithField("mount", req.target).Info("rejected SOURCE connection")
		writeV1Error(w, uploadErrorMessage(err))
		return
	}

	writeICYOk(w)
	s.serveUpload(ctx, conn, reader, req.target, nver.V1)
}

// handleUpload services a modern "SOURCE /<mount> HTTP/<ver>" NTRIP 2.0
// upload, authenticated via the Authorization header rather than an
// inline password.
func (s *Server) handleUpload(ctx context.Context, conn net.Conn, reader *bufio.Reader, req requestLine, headers map[string]string, version nver.Version) {
	w := bufio.NewWriter(conn)
	mount := strings.TrimPrefix(req.target, "/")

	_, password, _ := basicAuth(headers["authorization"])
	if err := s.store.VerifyUpload(mount, password); err != nil {
		s.logger.WithError(err).WithField("mount", mount).Info("rejected SOURCE upload")
		writeHTTPStatus(w, httpStatusFor(err), httpReasonFor(err), mount, authKind(err) == ntriperr.KindAuthFailed)
		return
	}

	writeV2SourceAccepted(w)
	s.serveUpload(ctx, conn, reader, mount, version)
}

// serveUpload runs once authentication has succeeded: it registers the
// mount, copies bytes from reader into the ring buffer and RTCM
// metadata parser, and cleans up on disconnect.
func (s *Server) serveUpload(ctx context.Context, conn net.Conn, reader *bufio.Reader, mount string, version nver.Version) {
	now := time.Now()
	info := &registry.MountInfo{
		Name:            mount,
		PeerAddr:        conn.RemoteAddr().String(),
		ProtocolVersion: version,
		ConnectTime:     now,
		LastDataTime:    now,
	}
	evicted := s.reg.AddMount(info, conn)
	if evicted != nil {
		if c := evicted.Conn(); c != nil {
			c.Close()
		}
	}

	rb := s.ringFor(mount)
	parser := s.parserFor(mount, now)

	if s.hooks.OnUploadConnected != nil {
		s.hooks.OnUploadConnected(mount)
	}

	defer func() {
		if s.reg.RemoveMountIf(mount, info) {
			s.dropRing(mount)
			s.dropParser(mount)
		}
		if s.hooks.OnUploadDisconnected != nil {
			s.hooks.OnUploadDisconnected(mount)
		}
	}()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := reader.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			rb.Append(chunk)
			s.reg.UpdateMountActivity(mount, n)
			if _, perr := parser.Feed(chunk, time.Now()); perr != nil {
				s.logger.WithError(perr).WithField("mount", mount).Debug("rtcm metadata parser error")
			}
			s.syncMountSnapshot(mount, parser)
			if s.hooks.OnBytesRelayed != nil {
				s.hooks.OnBytesRelayed(mount, n)
			}
		}
		if err != nil {
			s.logger.WithError(err).WithField("mount", mount).Info("uploader disconnected")
			return
		}
	}
}

// authKind resolves err to an ntriperr.Kind, checking the catalog's plain
// sentinels (ErrNoMount, ErrNoUser, ErrBadPassword, ErrForbidden) first
// since those never get wrapped in an *ntriperr.Error - only
// ntriperr.KindOf's catalog-internal failures are.
func authKind(err error) ntriperr.Kind {
	switch {
	case errors.Is(err, ntriperr.ErrNoMount):
		return ntriperr.KindMountNotFound
	case errors.Is(err, ntriperr.ErrNoUser), errors.Is(err, ntriperr.ErrBadPassword), errors.Is(err, ntriperr.ErrForbidden):
		return ntriperr.KindAuthFailed
	default:
		return ntriperr.KindOf(err)
	}
}

func uploadErrorMessage(err error) string {
	switch authKind(err) {
	case ntriperr.KindMountNotFound:
		return "Mount Point Does Not Exist"
	case ntriperr.KindAuthFailed:
		return "Bad Password"
	default:
		return "Internal Server Error"
	}
}

func httpStatusFor(err error) int {
	switch authKind(err) {
	case ntriperr.KindMountNotFound:
		return 404
	case ntriperr.KindAuthFailed:
		return 401
	default:
		return 500
	}
}

func httpReasonFor(err error) string {
	switch authKind(err) {
	case ntriperr.KindMountNotFound:
		return "Not Found"
	case ntriperr.KindAuthFailed:
		return "Unauthorized"
	default:
		return "Internal Server Error"
	}
}
