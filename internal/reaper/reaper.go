// Package reaper periodically disconnects uploaders and subscribers
// that have gone idle past their configured timeouts (spec component
// C7), so a base station that vanished without closing its socket
// doesn't keep a mount marked online forever.
package reaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ntripcaster/caster/internal/registry"
)

// Reaper sweeps the registry on a fixed interval.
type Reaper struct {
	reg           *registry.Registry
	logger        logrus.FieldLogger
	interval      time.Duration
	mountTimeout  time.Duration
	clientTimeout time.Duration
}

// New constructs a Reaper. interval is how often the sweep runs;
// mountTimeout/clientTimeout are how long an uploader/subscriber may go
// without activity before being disconnected.
func New(reg *registry.Registry, logger logrus.FieldLogger, interval, mountTimeout, clientTimeout time.Duration) *Reaper {
	return &Reaper{
		reg:           reg,
		logger:        logger,
		interval:      interval,
		mountTimeout:  mountTimeout,
		clientTimeout: clientTimeout,
	}
}

// Run sweeps the registry every interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Reaper) sweep(now time.Time) {
	for _, m := range r.reg.AllMounts() {
		if now.Sub(m.LastDataTime) <= r.mountTimeout {
			continue
		}
		mount, ok := r.reg.RemoveMount(m.Name)
		if !ok {
			continue
		}
		if conn := mount.Conn(); conn != nil {
			conn.Close()
		}
		r.logf(logrus.Fields{"mount": m.Name, "idle_for": now.Sub(m.LastDataTime)}, "reaped stale uploader")
	}

	for _, u := range r.reg.AllUsers() {
		if now.Sub(u.LastActivity) <= r.clientTimeout {
			continue
		}
		sub, ok := r.reg.RemoveUser(u.ConnectionID)
		if !ok {
			continue
		}
		if conn := sub.Conn(); conn != nil {
			conn.Close()
		}
		r.logf(logrus.Fields{
			"connection_id": u.ConnectionID,
			"mount":         u.Mount,
			"username":      u.Username,
			"idle_for":      now.Sub(u.LastActivity),
		}, "reaped idle subscriber")
	}
}

func (r *Reaper) logf(fields logrus.Fields, msg string) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(fields).Info(msg)
}
