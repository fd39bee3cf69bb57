package catalog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntripcaster/caster/internal/nver"
	"github.com/ntripcaster/caster/internal/ntriperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(noopWriter{})
	store, err := Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestCreateAndVerifyAdmin(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Bootstrap("admin", "hunter2"))

	ok, err := store.VerifyAdmin("admin", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.VerifyAdmin("admin", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyDownloadV2AuthMatrix(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateUser("alice", "pw")
	require.NoError(t, err)
	owner := "alice"
	_, err = store.CreateMount("MT01", "mountpw", &owner)
	require.NoError(t, err)

	// unknown mount
	err = store.VerifyDownload("MISSING", "alice", "pw", "", nver.V2)
	assert.ErrorIs(t, err, ntriperr.ErrNoMount)

	// unknown user
	err = store.VerifyDownload("MT01", "bob", "pw", "", nver.V2)
	assert.ErrorIs(t, err, ntriperr.ErrNoUser)

	// wrong password
	err = store.VerifyDownload("MT01", "alice", "wrong", "", nver.V2)
	assert.ErrorIs(t, err, ntriperr.ErrBadPassword)

	// user exists but isn't the owner
	_, err = store.CreateUser("eve", "pw2")
	require.NoError(t, err)
	err = store.VerifyDownload("MT01", "eve", "pw2", "", nver.V2)
	assert.ErrorIs(t, err, ntriperr.ErrForbidden)

	// owner succeeds
	err = store.VerifyDownload("MT01", "alice", "pw", "", nver.V2)
	assert.NoError(t, err)
}

func TestVerifyDownloadV1UsesMountPasswordOnly(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateMount("MT01", "mountpw", nil)
	require.NoError(t, err)

	assert.NoError(t, store.VerifyDownload("MT01", "", "", "mountpw", nver.V1))
	assert.ErrorIs(t, store.VerifyDownload("MT01", "", "", "wrong", nver.V1), ntriperr.ErrBadPassword)
	// No mount password supplied at all is accepted (some v1 clients omit it).
	assert.NoError(t, store.VerifyDownload("MT01", "", "", "", nver.V1))
}

func TestDeleteUserNullsMountOwnerWithoutCascade(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateUser("alice", "pw")
	require.NoError(t, err)
	owner := "alice"
	_, err = store.CreateMount("MT01", "mountpw", &owner)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser("alice"))

	_, ownerID, err := store.GetMount("MT01")
	require.NoError(t, err)
	assert.Nil(t, ownerID)
}
