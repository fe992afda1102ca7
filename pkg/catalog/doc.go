/*
Package catalog is the access layer over the cluster's catalog tables:
nodes, events, monitoring_history, and the shared voting/pause state that
the engine-side procedures expose.

Every method takes a context and, where it needs to act through a
connection other than the caller's default one (a witness copy, a
candidate announcement on a remote node), a *pool.Conn explicitly rather
than hiding a second connection inside the Catalog value. This mirrors
the teacher's storage layer: one narrow interface, one method per
catalog operation, backed here by parameterized pgx queries instead of
bucket reads.

Row-not-found is not an error: GetNodeRecord and GetSlotRecord return a
RecordStatus/ReplSlotStatus alongside the row so callers can tell "not
registered yet" apart from "query failed". RecordEvent never returns an
error that its caller is expected to act on — writing the audit trail
must not abort the action that produced it.
*/
package catalog
