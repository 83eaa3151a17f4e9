package oplock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardSecondAcquireFails(t *testing.T) {
	g := New()

	release, ok := g.TryAcquire("bulk")
	require.True(t, ok)
	assert.True(t, g.Held("bulk"))

	_, ok = g.TryAcquire("bulk")
	assert.False(t, ok)

	release()
	assert.False(t, g.Held("bulk"))

	_, ok = g.TryAcquire("bulk")
	assert.True(t, ok)
}

func TestGuardKeysAreIndependent(t *testing.T) {
	g := New()

	_, ok := g.TryAcquire("create")
	require.True(t, ok)

	_, ok = g.TryAcquire("bulk")
	assert.True(t, ok)
}

func TestGuardReleaseIsIdempotent(t *testing.T) {
	g := New()

	release, ok := g.TryAcquire("bulk")
	require.True(t, ok)
	release()

	again, ok := g.TryAcquire("bulk")
	require.True(t, ok)

	// A stale double release must not unlock the new holder.
	release()
	assert.True(t, g.Held("bulk"))

	again()
	assert.False(t, g.Held("bulk"))
}
