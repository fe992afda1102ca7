/*
Package vip binds and unbinds a floating address on a network interface
after a failover or switchover, the way repmgr's own promote_command
hook traditionally does by shelling out to ip and arping.

Bind and Unbind both query the interface's current address list first
and no-op when the address is already in the desired state, so a retried
promote_command or a monitoring daemon that calls Bind defensively on
every tick does not flap the address.

# Limitations

This package does not fence the old primary. If a failed primary comes
back while still believing it holds the virtual IP — a true split-brain —
two hosts can answer ARP for the same address until an operator or the
rejoin workflow intervenes. Nothing in this package or in the failover
engine detects that condition on its own; it is a known gap, not an
oversight, and is not solved by any consensus mechanism here.
*/
package vip
