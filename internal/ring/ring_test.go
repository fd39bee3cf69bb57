package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndSince(t *testing.T) {
	b := New(10)
	start := time.Now()

	b.Append([]byte("AA"))
	b.Append([]byte("BB"))

	entries, oldest := b.Since(start)
	require.Len(t, entries, 2)
	assert.Equal(t, []byte("AA"), entries[0].Bytes)
	assert.Equal(t, []byte("BB"), entries[1].Bytes)
	assert.True(t, !oldest.IsZero())
}

func TestSinceExcludesOlderEntries(t *testing.T) {
	b := New(10)
	b.Append([]byte("AA"))
	cutoff := time.Now()
	b.Append([]byte("BB"))

	entries, _ := b.Since(cutoff)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("BB"), entries[0].Bytes)
}

func TestOverflowDiscardsOldest(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Append([]byte{byte('A' + i)})
	}

	assert.Equal(t, 3, b.Len())
	entries, _ := b.Since(time.Time{})
	require.Len(t, entries, 3)
	assert.Equal(t, []byte{'C'}, entries[0].Bytes)
	assert.Equal(t, []byte{'E'}, entries[2].Bytes)
}

func TestOldestEmptyBuffer(t *testing.T) {
	b := New(5)
	assert.True(t, b.Oldest().IsZero())
}
