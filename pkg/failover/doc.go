/*
Package failover runs the last-writer-wins election a standby's
monitoring loop triggers once its upstream has been unreachable past
the configured degraded-monitoring timeout.

Engine.RunElection implements the eight steps in order: collect
candidate LSNs from reachable siblings, rank them, step aside if
another sibling outranks this node, increment the shared voting term,
announce this node's candidature to every sibling, promote the local
engine, publish the new primary to the catalog, re-point siblings at
it, and reset the voting state for the next election.

This is not a quorum protocol: a node with the newest LSN and highest
priority wins regardless of how many siblings it could actually reach,
which is why pkg/config calls the mode "automatic failover" rather than
"consensus".
*/
package failover
