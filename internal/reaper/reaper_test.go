package reaper

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntripcaster/caster/internal/registry"
)

func TestSweepReapsStaleMount(t *testing.T) {
	reg := registry.New(0)
	client, server := net.Pipe()
	defer client.Close()
	reg.AddMount(&registry.MountInfo{Name: "MT01", LastDataTime: time.Now().Add(-time.Hour)}, server)

	r := New(reg, nil, time.Minute, 10*time.Second, 10*time.Second)
	r.sweep(time.Now())

	assert.False(t, reg.IsMountOnline("MT01"))
}

func TestSweepKeepsActiveMount(t *testing.T) {
	reg := registry.New(0)
	reg.AddMount(&registry.MountInfo{Name: "MT01", LastDataTime: time.Now()}, nil)

	r := New(reg, nil, time.Minute, 10*time.Second, 10*time.Second)
	r.sweep(time.Now())

	assert.True(t, reg.IsMountOnline("MT01"))
}

func TestSweepReapsIdleSubscriber(t *testing.T) {
	reg := registry.New(0)
	client, server := net.Pipe()
	defer client.Close()
	reg.AddUser(&registry.UserConnection{
		ConnectionID: "c1",
		LastActivity: time.Now().Add(-time.Hour),
	}, server)

	r := New(reg, nil, time.Minute, 10*time.Second, 10*time.Second)
	r.sweep(time.Now())

	_, ok := reg.UserRef("c1")
	assert.False(t, ok)
}

var _ = require.True
