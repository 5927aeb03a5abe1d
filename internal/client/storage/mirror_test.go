package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/propsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorBackend_ReadsLocalWritesBoth(t *testing.T) {
	ctx := context.Background()
	local, remote := newMemBackend(), newMemBackend()
	m := NewMirrorBackend(local, remote, time.Second, nil)

	require.NoError(t, m.Set(ctx, "bulk_a", []byte("1")))
	assert.True(t, local.has("bulk_a"))
	assert.True(t, remote.has("bulk_a"))

	remote.failGet = true
	got, err := m.Get(ctx, "bulk_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	keys, err := m.Keys(ctx, "bulk_")
	require.NoError(t, err)
	assert.Equal(t, []string{"bulk_a"}, keys)

	require.NoError(t, m.Delete(ctx, "bulk_a"))
	assert.False(t, local.has("bulk_a"))
	assert.False(t, remote.has("bulk_a"))
}

func TestMirrorBackend_RemoteFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	local, remote := newMemBackend(), newMemBackend()
	remote.failSet, remote.failDel = true, true
	m := NewMirrorBackend(local, remote, 0, nil)

	require.NoError(t, m.Set(ctx, "bulk_a", []byte("1")))
	assert.True(t, local.has("bulk_a"))
	require.NoError(t, m.Delete(ctx, "bulk_a"))
	assert.False(t, local.has("bulk_a"))
}

func TestMirrorBackend_LocalFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	local, remote := newMemBackend(), newMemBackend()
	local.failSet = true
	m := NewMirrorBackend(local, remote, 0, nil)

	require.ErrorIs(t, m.Set(ctx, "bulk_a", []byte("1")), errBackend)
	assert.False(t, remote.has("bulk_a"))
}

func TestAdapter_OverMirrorSurvivesRemoteOutage(t *testing.T) {
	ctx := context.Background()
	secure, local, remote := newMemBackend(), newMemBackend(), newMemBackend()
	a := NewAdapter(secure, NewMirrorBackend(local, remote, 0, nil), 200, logging.Nop())

	require.NoError(t, a.Put(ctx, "cache_big", bigUnit()))
	remote.failGet, remote.failSet = true, true

	var got unit
	found, err := a.Lookup(ctx, "cache_big", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, bigUnit(), got)
}
