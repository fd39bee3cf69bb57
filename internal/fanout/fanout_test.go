package fanout

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/ring"
)

type fakeRingSource struct {
	rings map[string]*ring.Buffer
}

func (f fakeRingSource) Ring(mount string) (*ring.Buffer, bool) {
	r, ok := f.rings[mount]
	return r, ok
}

func TestServeSendsNewEntriesRaw(t *testing.T) {
	reg := registry.New(0)
	rb := ring.New(10)
	rb.Append([]byte("hello"))

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sub := &registry.UserConnection{ConnectionID: "c1", Username: "alice", Mount: "MT01", ProtocolVersion: nver.V1}
	reg.AddUser(sub, server)

	e := New(reg, fakeRingSource{rings: map[string]*ring.Buffer{"MT01": rb}}, nil, Config{
		BroadcastInterval: time.Second,
		DataSendTimeout:   time.Second,
		ChunkedV2:         true,
	}, nil)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	e.serve(rb, sub)

	select {
	case got := <-done:
		assert.Equal(t, "hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestServeChunksNTRIP2(t *testing.T) {
	reg := registry.New(0)
	rb := ring.New(10)
	rb.Append([]byte("abc"))

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sub := &registry.UserConnection{ConnectionID: "c1", Username: "alice", Mount: "MT01", ProtocolVersion: nver.V2}
	reg.AddUser(sub, server)

	e := New(reg, fakeRingSource{rings: map[string]*ring.Buffer{"MT01": rb}}, nil, Config{
		BroadcastInterval: time.Second,
		DataSendTimeout:   time.Second,
		ChunkedV2:         true,
	}, nil)

	read := make(chan string, 1)
	go func() {
		r := bufio.NewReader(client)
		line, _ := r.ReadString('\n')
		read <- line
	}()

	e.serve(rb, sub)

	select {
	case line := <-read:
		assert.Equal(t, "3\r\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk size line")
	}
}

func TestServeFramesEachEntrySeparately(t *testing.T) {
	reg := registry.New(0)
	rb := ring.New(10)
	rb.Append([]byte("F1"))
	rb.Append([]byte("F2"))
	rb.Append([]byte("F3"))

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sub := &registry.UserConnection{ConnectionID: "c1", Username: "alice", Mount: "MT01", ProtocolVersion: nver.V2}
	reg.AddUser(sub, server)

	e := New(reg, fakeRingSource{rings: map[string]*ring.Buffer{"MT01": rb}}, nil, Config{
		BroadcastInterval: time.Second,
		DataSendTimeout:   time.Second,
		ChunkedV2:         true,
	}, nil)

	// net.Pipe hands over one write per Read, so read until all three
	// chunks have arrived.
	const want = "2\r\nF1\r\n2\r\nF2\r\n2\r\nF3\r\n"
	read := make(chan string, 1)
	go func() {
		buf := make([]byte, len(want))
		n, _ := io.ReadFull(client, buf)
		read <- string(buf[:n])
	}()

	e.serve(rb, sub)

	select {
	case got := <-read:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunked frames")
	}
}

func TestServeEvictsOnBufferOverrun(t *testing.T) {
	reg := registry.New(0)
	rb := ring.New(2)
	rb.Append([]byte("a"))
	rb.Append([]byte("b"))
	rb.Append([]byte("c")) // overflows the 2-entry ring, discarding "a"

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var evictedReason string
	sub := &registry.UserConnection{
		ConnectionID:      "c1",
		Username:          "alice",
		Mount:             "MT01",
		ProtocolVersion:   nver.V1,
		LastSentTimestamp: rb.Oldest().Add(-time.Second), // older than anything still retained
	}
	reg.AddUser(sub, server)

	e := New(reg, fakeRingSource{rings: map[string]*ring.Buffer{"MT01": rb}}, nil, Config{
		BroadcastInterval: time.Second,
		DataSendTimeout:   time.Second,
	}, func(u *registry.UserConnection, reason string) {
		evictedReason = reason
	})

	e.serve(rb, sub)

	assert.NotEmpty(t, evictedReason)
	_, ok := reg.UserRef("c1")
	assert.False(t, ok)
}

func TestEvictOnWriteFailure(t *testing.T) {
	reg := registry.New(0)
	rb := ring.New(10)
	rb.Append([]byte("x"))

	client, server := net.Pipe()
	client.Close() // force writes on server to fail

	var evictedReason string
	sub := &registry.UserConnection{ConnectionID: "c1", Username: "alice", Mount: "MT01"}
	reg.AddUser(sub, server)

	e := New(reg, fakeRingSource{rings: map[string]*ring.Buffer{"MT01": rb}}, nil, Config{
		BroadcastInterval: time.Second,
		DataSendTimeout:   100 * time.Millisecond,
	}, func(u *registry.UserConnection, reason string) {
		evictedReason = reason
	})

	e.serve(rb, sub)

	assert.NotEmpty(t, evictedReason)
	_, ok := reg.UserRef("c1")
	assert.False(t, ok)
}

var _ require.TestingT = (*testing.T)(nil)
