// Package fanout runs the periodic broadcast loop that copies newly
// arrived ring-buffer bytes out to every subscriber of a mount (spec
// component C5), framing each write per NTRIP protocol version and
// evicting subscribers that can't keep up.
package fanout

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/ring"
)

// RingSource looks up the ring buffer backing a mount's upload stream.
type RingSource interface {
	Ring(mount string) (*ring.Buffer, bool)
}

// Engine periodically drains each online mount's ring buffer to every
// currently-subscribed user.
type Engine struct {
	reg             *registry.Registry
	rings           RingSource
	logger          logrus.FieldLogger
	broadcastEvery  time.Duration
	dataSendTimeout time.Duration
	chunkedV2       bool

	onEvict func(u *registry.UserConnection, reason string)
}

// Config carries the tunables the broadcast loop is built from.
type Config struct {
	BroadcastInterval time.Duration
	DataSendTimeout   time.Duration
	ChunkedV2         bool
}

// New constructs an Engine. onEvict, if non-nil, is called whenever a
// slow or disconnected subscriber is dropped, so the caller can log or
// update metrics.
func New(reg *registry.Registry, rings RingSource, logger logrus.FieldLogger, cfg Config, onEvict func(*registry.UserConnection, string)) *Engine {
	return &Engine{
		reg:             reg,
		rings:           rings,
		logger:          logger,
		broadcastEvery:  cfg.BroadcastInterval,
		dataSendTimeout: cfg.DataSendTimeout,
		chunkedV2:       cfg.ChunkedV2,
		onEvict:         onEvict,
	}
}

// Run drives the broadcast loop until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.broadcastEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	for _, mount := range e.reg.AllMounts() {
		rb, ok := e.rings.Ring(mount.Name)
		if !ok {
			continue
		}
		for _, sub := range e.reg.UsersForMount(mount.Name) {
			e.serve(rb, sub)
		}
	}
}

// serve sends whatever ring entries are newer than sub's last send to
// sub, framing per its negotiated protocol version. Each entry is its
// own NTRIP 2.0 chunk - entries uploaded in separate writes must arrive
// as separate chunks even when several land in the same broadcast tick.
// A write that can't complete within dataSendTimeout evicts the
// subscriber: a non-keeping-up rover is indistinguishable from a dead
// one. A subscriber whose watermark already precedes the ring's oldest
// retained entry has fallen behind far enough that data it still needed
// was overwritten before it could be sent, and is evicted the same way.
// A zero watermark means nothing has been sent yet, so every retained
// entry is delivered.
func (e *Engine) serve(rb *ring.Buffer, sub *registry.UserConnection) {
	entries, oldest := rb.Since(sub.LastSentTimestamp)
	if !oldest.IsZero() && !sub.LastSentTimestamp.IsZero() && sub.LastSentTimestamp.Before(oldest) {
		e.evict(sub, "buffer overrun: subscriber fell behind the ring buffer's retention window")
		return
	}
	if len(entries) == 0 {
		return
	}

	for _, entry := range entries {
		framed := e.frame(sub.ProtocolVersion, entry.Bytes)
		if err := writeWithDeadline(sub.Conn(), framed, e.dataSendTimeout); err != nil {
			e.evict(sub, fmt.Sprintf("write failed: %v", err))
			return
		}
		e.reg.UpdateUserActivity(sub.ConnectionID, len(entry.Bytes), entry.Timestamp)
	}
}

func (e *Engine) frame(version nver.Version, payload []byte) []byte {
	if version == nver.V1 || !e.chunkedV2 {
		return payload
	}
	chunk := fmt.Sprintf("%x\r\n", len(payload))
	out := make([]byte, 0, len(chunk)+len(payload)+2)
	out = append(out, chunk...)
	out = append(out, payload...)
	out = append(out, '\r', '\n')
	return out
}

func (e *Engine) evict(sub *registry.UserConnection, reason string) {
	e.reg.RemoveUser(sub.ConnectionID)
	if conn := sub.Conn(); conn != nil {
		conn.Close()
	}
	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"connection_id": sub.ConnectionID,
			"mount":         sub.Mount,
			"username":      sub.Username,
		}).Warnf("evicting subscriber: %s", reason)
	}
	if e.onEvict != nil {
		e.onEvict(sub, reason)
	}
}

func writeWithDeadline(conn net.Conn, data []byte, timeout time.Duration) error {
	if conn == nil {
		return fmt.Errorf("fanout: nil connection")
	}
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	_, err := conn.Write(data)
	return err
}
