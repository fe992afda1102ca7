package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/repmgrd/pkg/pool"
)

// connectTestCatalog requires REPMGRD_TEST_CONNINFO to point at a
// scratch database carrying the catalog schema. These tests exercise
// the properties that can only be observed against a real engine
// (round-trip field fidelity, concurrent-registration invariants,
// idempotent shared-state writes) rather than against a fake.
func connectTestCatalog(t *testing.T) (*PGCatalog, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	conninfo := os.Getenv("REPMGRD_TEST_CONNINFO")
	if conninfo == "" {
		t.Skip("REPMGRD_TEST_CONNINFO not set, skipping integration test")
	}

	pl := pool.New("repmgrd-test")
	conn, err := pl.Open(context.Background(), conninfo)
	require.NoError(t, err)

	return New(conn), func() { conn.Close() }
}

// TestCreateThenGetNodeRecordRoundTrips exercises property #5: every
// field written by CreateNodeRecord is returned unchanged by
// GetNodeRecord.
func TestCreateThenGetNodeRecordRoundTrips(t *testing.T) {
	cat, closeFn := connectTestCatalog(t)
	defer closeFn()
	ctx := context.Background()

	upstream := int32(1)
	want := &Node{
		ID: 9001, Type: NodeTypeStandby, UpstreamNodeID: &upstream,
		Name: "round-trip-node", Conninfo: "host=127.0.0.1 dbname=postgres",
		ReplUser: "repl", SlotName: "repmgr_slot_9001", Location: "dc1",
		Priority: 50, Active: true, ConfigFile: "/data/postgresql.conf",
		VirtualIP: "10.0.0.9", NetworkCard: "eth0",
	}
	require.NoError(t, cat.CreateNodeRecord(ctx, want))
	defer cat.UnregisterNodeRecord(ctx, want.ID)

	got, status, err := cat.GetNodeRecord(ctx, want.ID)
	require.NoError(t, err)
	require.Equal(t, RecordFound, status)
	assert.Equal(t, want, got)
}

// TestSetLocalNodeIDIsIdempotent exercises property #7: a second
// SetLocalNodeID call with a different value does not overwrite the
// value recorded by the first.
func TestSetLocalNodeIDIsIdempotent(t *testing.T) {
	cat, closeFn := connectTestCatalog(t)
	defer closeFn()
	ctx := context.Background()

	require.NoError(t, cat.SetLocalNodeID(ctx, 1))
	require.NoError(t, cat.SetLocalNodeID(ctx, 2))

	got, found, err := cat.GetLocalNodeID(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 1, got)
}

// TestUpdateNodeRecordSetPrimaryLeavesAtMostOneActivePrimary exercises
// property #1: promoting a node to primary demotes whichever node
// previously held that status, so at most one row ever satisfies
// type=primary AND active=TRUE.
func TestUpdateNodeRecordSetPrimaryLeavesAtMostOneActivePrimary(t *testing.T) {
	cat, closeFn := connectTestCatalog(t)
	defer closeFn()
	ctx := context.Background()

	require.NoError(t, cat.CreateNodeRecord(ctx, &Node{
		ID: 9002, Type: NodeTypePrimary, Name: "old-primary", Active: true,
	}))
	defer cat.UnregisterNodeRecord(ctx, 9002)
	require.NoError(t, cat.CreateNodeRecord(ctx, &Node{
		ID: 9003, Type: NodeTypeStandby, Name: "new-primary", Active: true,
	}))
	defer cat.UnregisterNodeRecord(ctx, 9003)

	require.NoError(t, cat.UpdateNodeRecordSetPrimary(ctx, 9003))

	nodes, err := cat.GetAllNodeRecords(ctx)
	require.NoError(t, err)

	primaries := 0
	for _, n := range nodes {
		if n.Type == NodeTypePrimary && n.Active {
			primaries++
		}
	}
	assert.Equal(t, 1, primaries)
}
