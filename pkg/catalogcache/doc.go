/*
Package catalogcache keeps a local bbolt-backed copy of catalog data in
the data directory: a node list and the local node's last replication
snapshot.

pkg/monitor's standby loop writes the local node's replication snapshot
into the cache on every tick where the local replication query succeeds.
PutNodes and GetNodes store and return a node list, but no caller in
this tree writes one, and pkg/nodeaction does not read from the cache.
*/
package catalogcache
