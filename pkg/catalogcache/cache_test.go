package catalogcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/repmgrd/pkg/catalog"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutAndGetNodes(t *testing.T) {
	c := openTestCache(t)

	nodes := []*catalog.Node{
		{ID: 1, Type: catalog.NodeTypePrimary, Name: "node1", Active: true},
		{ID: 2, Type: catalog.NodeTypeStandby, Name: "node2", Active: true},
	}
	require.NoError(t, c.PutNodes(nodes))

	got, err := c.GetNodes()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPutNodesOverwritesPreviousSnapshot(t *testing.T) {
	c := openTestCache(t)

	require.NoError(t, c.PutNodes([]*catalog.Node{
		{ID: 1, Name: "node1"},
		{ID: 2, Name: "node2"},
		{ID: 3, Name: "node3"},
	}))
	require.NoError(t, c.PutNodes([]*catalog.Node{
		{ID: 1, Name: "node1"},
	}))

	got, err := c.GetNodes()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetReplicationInfoMissingReturnsNil(t *testing.T) {
	c := openTestCache(t)

	info, err := c.GetReplicationInfo(99)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestPutAndGetReplicationInfo(t *testing.T) {
	c := openTestCache(t)

	want := &catalog.ReplicationInfo{
		InRecovery: true,
		Timeline:   3,
		LagSeconds: 1.5,
	}
	require.NoError(t, c.PutReplicationInfo(1, want))

	got, err := c.GetReplicationInfo(1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Timeline, got.Timeline)
	assert.Equal(t, want.LagSeconds, got.LagSeconds)
}
