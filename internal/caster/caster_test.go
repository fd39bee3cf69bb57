package caster

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntripcaster/caster/internal/catalog"
	"github.com/ntripcaster/caster/internal/registry"
	"github.com/ntripcaster/caster/internal/sourcetable"
)

func basicAuthHeader(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func newTestServer(t *testing.T) (*Server, *catalog.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(testDiscard{})

	store, err := catalog.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New(3)
	srv := New(Config{
		Addr:           ":0",
		Identity:       sourcetable.CasterIdentity{Host: "test.example.com", Port: 2101, Identifier: "TestCaster"},
		RingBufferSize: 100,
		ChunkedV2:      true,
	}, store, reg, logger, Hooks{})
	return srv, store
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestLegacySourceUploadAcceptedAndTracked(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateMount("MT01", "secret", nil)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.handleConnection(ctx, serverConn)
		close(done)
	}()

	_, err = clientConn.Write([]byte("SOURCE secret MT01\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ICY 200 OK\r\n", line)

	// Give the server goroutine a moment to register the mount.
	assert.Eventually(t, func() bool {
		return srv.Registry().IsMountOnline("MT01")
	}, time.Second, 10*time.Millisecond)

	clientConn.Close()
	<-done
}

func TestLegacySourceWrongPasswordRejected(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateMount("MT01", "secret", nil)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.handleConnection(ctx, serverConn)

	_, err = clientConn.Write([]byte("SOURCE wrong MT01\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "ERROR")
	assert.False(t, srv.Registry().IsMountOnline("MT01"))
}

func TestModernSourceUploadAcceptedAndTracked(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateMount("MT01", "secret", nil)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.handleConnection(ctx, serverConn)
		close(done)
	}()

	req := "SOURCE /MT01 HTTP/1.1\r\n" +
		"Authorization: Basic " + basicAuthHeader("", "secret") + "\r\n" +
		"\r\n"
	_, err = clientConn.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", status)

	ntripVersion, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Ntrip-Version: Ntrip/2.0\r\n", ntripVersion)

	assert.Eventually(t, func() bool {
		return srv.Registry().IsMountOnline("MT01")
	}, time.Second, 10*time.Millisecond)

	clientConn.Close()
	<-done
}

func TestModernSourceWrongPasswordRejected(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.CreateMount("MT01", "secret", nil)
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.handleConnection(ctx, serverConn)

	req := "SOURCE /MT01 HTTP/1.1\r\n" +
		"Authorization: Basic " + basicAuthHeader("", "wrong") + "\r\n" +
		"\r\n"
	_, err = clientConn.Write([]byte(req))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "401")
	assert.False(t, srv.Registry().IsMountOnline("MT01"))
}

func TestSourcetableRequestServesCasterEntry(t *testing.T) {
	srv, _ := newTestServer(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.handleConnection(ctx, serverConn)

	_, err := clientConn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	status, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "200")

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(rest), "CAS;test.example.com;2101;TestCaster;")
}
