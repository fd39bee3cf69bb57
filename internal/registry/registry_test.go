package registry

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntripcaster/caster/internal/nver"
)

func TestAddMountEvictsPrevious(t *testing.T) {
	r := New(0)
	first := &MountInfo{Name: "MT01", ConnectTime: time.Now()}
	evicted := r.AddMount(first, nil)
	assert.Nil(t, evicted)

	second := &MountInfo{Name: "MT01", ConnectTime: time.Now()}
	evicted = r.AddMount(second, nil)
	require.NotNil(t, evicted)
	assert.Same(t, first, evicted)

	m, ok := r.GetMount("MT01")
	require.True(t, ok)
	assert.Equal(t, second.ConnectTime, m.ConnectTime)
}

func TestIsMountOnline(t *testing.T) {
	r := New(0)
	assert.False(t, r.IsMountOnline("MT01"))
	r.AddMount(&MountInfo{Name: "MT01"}, nil)
	assert.True(t, r.IsMountOnline("MT01"))
	r.RemoveMount("MT01")
	assert.False(t, r.IsMountOnline("MT01"))
}

func TestAddUserEvictsOldestOverCap(t *testing.T) {
	r := New(3)
	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		ids = append(ids, id)
		evicted := r.AddUser(&UserConnection{
			ConnectionID: id,
			Username:     "alice",
			Mount:        "MT01",
			ConnectTime:  base.Add(time.Duration(i) * time.Second),
			ProtocolVersion: nver.V2,
		}, nil)
		assert.Nil(t, evicted)
	}

	// Fourth connection should evict "a" (the oldest).
	evicted := r.AddUser(&UserConnection{
		ConnectionID: "d",
		Username:     "alice",
		Mount:        "MT01",
		ConnectTime:  base.Add(4 * time.Second),
	}, nil)
	require.NotNil(t, evicted)
	assert.Equal(t, "a", evicted.ConnectionID)
	assert.Equal(t, 3, r.MountConnectionCount("alice", "MT01"))

	_, ok := r.UserRef("a")
	assert.False(t, ok)
}

func TestAddUserDoesNotEvictAcrossDifferentMounts(t *testing.T) {
	r := New(3)
	for i := 0; i < 3; i++ {
		r.AddUser(&UserConnection{
			ConnectionID: string(rune('a' + i)),
			Username:     "alice",
			Mount:        "MT01",
			ConnectTime:  time.Now(),
		}, nil)
	}
	evicted := r.AddUser(&UserConnection{
		ConnectionID: "other",
		Username:     "alice",
		Mount:        "MT02",
		ConnectTime:  time.Now(),
	}, nil)
	assert.Nil(t, evicted)
	assert.Equal(t, 3, r.MountConnectionCount("alice", "MT01"))
	assert.Equal(t, 1, r.MountConnectionCount("alice", "MT02"))
}

func TestUpdateMountActivityComputesRate(t *testing.T) {
	r := New(0)
	r.AddMount(&MountInfo{Name: "MT01", ConnectTime: time.Now().Add(-2 * time.Second)}, nil)
	r.UpdateMountActivity("MT01", 1000)

	m, ok := r.GetMount("MT01")
	require.True(t, ok)
	assert.Equal(t, int64(1000), m.TotalBytes)
	assert.Greater(t, m.DataRateBPS, 0.0)
}

func TestGetStatistics(t *testing.T) {
	r := New(0)
	r.AddMount(&MountInfo{Name: "MT01", TotalBytes: 500}, nil)
	r.AddUser(&UserConnection{ConnectionID: "u1", Username: "alice", Mount: "MT01", ConnectTime: time.Now()}, nil)

	stats := r.GetStatistics()
	assert.Equal(t, 1, stats.OnlineMounts)
	assert.Equal(t, 1, stats.ConnectedUsers)
	assert.Equal(t, int64(500), stats.TotalBytesRelayed)
}

func TestRemoveMountIfGuardsAgainstStaleCleanup(t *testing.T) {
	r := New(0)
	first := &MountInfo{Name: "MT01"}
	r.AddMount(first, nil)
	second := &MountInfo{Name: "MT01"}
	r.AddMount(second, nil)

	// first's own cleanup path must not remove second's registration.
	ok := r.RemoveMountIf("MT01", first)
	assert.False(t, ok)
	assert.True(t, r.IsMountOnline("MT01"))

	ok = r.RemoveMountIf("MT01", second)
	assert.True(t, ok)
	assert.False(t, r.IsMountOnline("MT01"))
}

var _ net.Conn = (*net.TCPConn)(nil)
