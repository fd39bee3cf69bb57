// Package registry is the thread-safe in-memory state of currently
// connected base stations (mounts) and subscribed rovers (spec component
// C3). It exposes two independent locks - one for mounts, one for users -
// that the rest of the caster must never acquire nested, so that a
// subscriber join in flight can never deadlock against the RTCM parser
// updating a mount's STR line.
package registry

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/ntripcaster/caster/internal/nver"
)

// MountInfo is the live state of a currently-streaming uploader connection.
type MountInfo struct {
	Name            string
	PeerAddr        string
	Agent           string
	ProtocolVersion nver.Version
	ConnectTime     time.Time
	LastDataTime    time.Time
	TotalBytes      int64
	DataRateBPS     float64

	StationID   string
	Latitude    float64
	Longitude   float64
	Height      float64
	CountryISO3 string
	City        string

	STRLine          string
	InitialGenerated bool
	FinalGenerated   bool

	conn net.Conn
}

// Conn returns the uploader's socket, for admin-triggered forced disconnect.
func (m *MountInfo) Conn() net.Conn { return m.conn }

// UserConnection is the live state of a currently-subscribed rover.
type UserConnection struct {
	ConnectionID      string
	Username          string
	Mount             string
	PeerAddr          string
	Agent             string
	ProtocolVersion   nver.Version
	ConnectTime       time.Time
	LastActivity      time.Time
	BytesSent         int64
	LastSentTimestamp time.Time

	conn net.Conn
}

// Conn returns the subscriber's socket, for admin-triggered forced disconnect.
func (u *UserConnection) Conn() net.Conn { return u.conn }

// MaxUserConnectionsPerMount is the default cap enforced by invariant I5.
const MaxUserConnectionsPerMount = 3

// Registry holds all currently-connected mounts and subscribers.
type Registry struct {
	mountLock sync.RWMutex
	mounts    map[string]*MountInfo

	userLock              sync.RWMutex
	users                 map[string]*UserConnection // keyed by ConnectionID
	maxUserConnsPerMount int
}

// New constructs an empty Registry. maxUserConnsPerMount <= 0 uses the
// spec default of 3.
func New(maxUserConnsPerMount int) *Registry {
	if maxUserConnsPerMount <= 0 {
		maxUserConnsPerMount = MaxUserConnectionsPerMount
	}
	return &Registry{
		mounts:               make(map[string]*MountInfo),
		users:                make(map[string]*UserConnection),
		maxUserConnsPerMount: maxUserConnsPerMount,
	}
}

// AddMount registers a newly-admitted uploader. If the mount was already
// online, the previous MountInfo is evicted (last-writer-wins, spec.md
// §4.6 step 4) and returned so the caller can close its socket.
func (r *Registry) AddMount(info *MountInfo, conn net.Conn) (evicted *MountInfo) {
	info.conn = conn

	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	evicted = r.mounts[info.Name]
	r.mounts[info.Name] = info
	return evicted
}

// RemoveMount removes a mount by name, returning it if present.
func (r *Registry) RemoveMount(name string) (*MountInfo, bool) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if ok {
		delete(r.mounts, name)
	}
	return m, ok
}

// RemoveMountIf removes the mount only if the currently-registered MountInfo
// is exactly current - used by an uploader's own cleanup path so it never
// deletes a newer uploader's registration that replaced it (last-writer-wins
// already evicted the stale one on admission, but this guards against a
// race between eviction and a slow defer).
func (r *Registry) RemoveMountIf(name string, current *MountInfo) bool {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	if r.mounts[name] == current {
		delete(r.mounts, name)
		return true
	}
	return false
}

// GetMount returns a copy of the mount's info, or false if offline.
// Invariant I1: a name is present here iff an uploader is currently feeding
// it.
func (r *Registry) GetMount(name string) (MountInfo, bool) {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()

	m, ok := r.mounts[name]
	if !ok {
		return MountInfo{}, false
	}
	return *m, true
}

// MountRef returns the live *MountInfo (not a copy) so the parser and
// broadcast loop can update fields under their own short critical
// sections. Callers must not retain conn access outside mountLock.
func (r *Registry) MountRef(name string) (*MountInfo, bool) {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()
	m, ok := r.mounts[name]
	return m, ok
}

// IsMountOnline reports whether a mount currently has a live uploader.
func (r *Registry) IsMountOnline(name string) bool {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()
	_, ok := r.mounts[name]
	return ok
}

// UpdateMountActivity records newly-received bytes and recomputes the
// mount's data rate, called from the uploader's read loop.
func (r *Registry) UpdateMountActivity(name string, n int) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if !ok {
		return
	}
	now := time.Now()
	elapsed := now.Sub(m.ConnectTime).Seconds()
	m.TotalBytes += int64(n)
	m.LastDataTime = now
	if elapsed > 0 {
		m.DataRateBPS = float64(m.TotalBytes) * 8 / elapsed
	}
}

// UpdateMountSTR overwrites a mount's STR-line-relevant fields, called by
// the RTCM metadata parser (holds mountLock only for this short critical
// section, never across reverse-geocode or I/O, per spec.md §5).
func (r *Registry) UpdateMountSTR(name string, update func(*MountInfo)) {
	r.mountLock.Lock()
	defer r.mountLock.Unlock()

	m, ok := r.mounts[name]
	if !ok {
		return
	}
	update(m)
}

// AllMounts returns a snapshot copy of every currently-online mount, used
// by the sourcetable formatter, the broadcast loop and the reaper.
func (r *Registry) AllMounts() []MountInfo {
	r.mountLock.RLock()
	defer r.mountLock.RUnlock()

	out := make([]MountInfo, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddUser registers a newly-admitted subscriber, enforcing invariant I5:
// at most maxUserConnsPerMount connections per (username, mount). If the
// cap is exceeded, the oldest connection (by ConnectTime) for that pair is
// evicted first and returned so the caller can close its socket.
func (r *Registry) AddUser(conn *UserConnection, socket net.Conn) (evicted *UserConnection) {
	conn.conn = socket

	r.userLock.Lock()
	defer r.userLock.Unlock()

	var matching []*UserConnection
	for _, u := range r.users {
		if u.Username == conn.Username && u.Mount == conn.Mount {
			matching = append(matching, u)
		}
	}

	if len(matching) >= r.maxUserConnsPerMount {
		sort.Slice(matching, func(i, j int) bool {
			return matching[i].ConnectTime.Before(matching[j].ConnectTime)
		})
		evicted = matching[0]
		delete(r.users, evicted.ConnectionID)
	}

	r.users[conn.ConnectionID] = conn
	return evicted
}

// RemoveUser removes a subscriber by connection id.
func (r *Registry) RemoveUser(connectionID string) (*UserConnection, bool) {
	r.userLock.Lock()
	defer r.userLock.Unlock()

	u, ok := r.users[connectionID]
	if ok {
		delete(r.users, connectionID)
	}
	return u, ok
}

// UpdateUserActivity records a send of n bytes at timestamp ts. Invariant
// I3: LastSentTimestamp is monotonically non-decreasing.
func (r *Registry) UpdateUserActivity(connectionID string, n int, ts time.Time) {
	r.userLock.Lock()
	defer r.userLock.Unlock()

	u, ok := r.users[connectionID]
	if !ok {
		return
	}
	u.BytesSent += int64(n)
	u.LastActivity = time.Now()
	if ts.After(u.LastSentTimestamp) {
		u.LastSentTimestamp = ts
	}
}

// TouchUserActivity updates LastActivity without advancing
// LastSentTimestamp or BytesSent.
func (r *Registry) TouchUserActivity(connectionID string) {
	r.userLock.Lock()
	defer r.userLock.Unlock()
	if u, ok := r.users[connectionID]; ok {
		u.LastActivity = time.Now()
	}
}

// UserRef returns the live *UserConnection for connectionID, if present.
func (r *Registry) UserRef(connectionID string) (*UserConnection, bool) {
	r.userLock.RLock()
	defer r.userLock.RUnlock()
	u, ok := r.users[connectionID]
	return u, ok
}

// UsersForMount returns a snapshot of every subscriber currently attached
// to mount, used by the broadcast loop.
func (r *Registry) UsersForMount(mount string) []*UserConnection {
	r.userLock.RLock()
	defer r.userLock.RUnlock()

	var out []*UserConnection
	for _, u := range r.users {
		if u.Mount == mount {
			out = append(out, u)
		}
	}
	return out
}

// UsersForUsername returns every connection currently open for
// username, across all mounts.
func (r *Registry) UsersForUsername(username string) []*UserConnection {
	r.userLock.RLock()
	defer r.userLock.RUnlock()

	var out []*UserConnection
	for _, u := range r.users {
		if u.Username == username {
			out = append(out, u)
		}
	}
	return out
}

// AllUsers returns a snapshot of every connected subscriber.
func (r *Registry) AllUsers() []UserConnection {
	r.userLock.RLock()
	defer r.userLock.RUnlock()

	out := make([]UserConnection, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out
}

// Statistics is a point-in-time summary returned by GetStatistics, used by
// the admin surface.
type Statistics struct {
	OnlineMounts      int
	ConnectedUsers    int
	TotalBytesRelayed int64
}

// GetStatistics reports a snapshot summary of registry state. Idempotent
// and safe to call concurrently with everything else, per the admin
// surface's contract (spec.md §6).
func (r *Registry) GetStatistics() Statistics {
	r.mountLock.RLock()
	var totalBytes int64
	mountCount := len(r.mounts)
	for _, m := range r.mounts {
		totalBytes += m.TotalBytes
	}
	r.mountLock.RUnlock()

	r.userLock.RLock()
	userCount := len(r.users)
	r.userLock.RUnlock()

	return Statistics{
		OnlineMounts:      mountCount,
		ConnectedUsers:    userCount,
		TotalBytesRelayed: totalBytes,
	}
}

// MountConnectionCount returns how many (username, mount) connections
// currently exist for this exact pair.
func (r *Registry) MountConnectionCount(username, mount string) int {
	r.userLock.RLock()
	defer r.userLock.RUnlock()

	count := 0
	for _, u := range r.users {
		if u.Username == username && u.Mount == mount {
			count++
		}
	}
	return count
}

// String satisfies fmt.Stringer for convenient logging.
func (s Statistics) String() string {
	return fmt.Sprintf("mounts=%d users=%d bytes=%d", s.OnlineMounts, s.ConnectedUsers, s.TotalBytesRelayed)
}
