/*
Package remote shells out on behalf of the rest of repmgrd: event
notification commands, node-rejoin resync tools, and password-authenticated
SSH for hosts without a key exchanged yet.

LocalCommand is the single chokepoint every other helper in this package
runs through. ExpandTemplate fills repmgrd's documented placeholders
(%n, %a, %e, %d, %s, %t, %c, %p, %%) into a configured command string.
Executor wires the two together for the notification command, which
pkg/failover runs after a promotion; pkg/nodeaction's Rejoin runs its
resync tool through LocalCommand directly.

SSHPasswordTransport exists for hosts repmgr's original sshpass helper
would have reached with a forked pty, using golang.org/x/crypto/ssh
instead. It reports a wrong password distinctly; a rejected host key
comes back as a connectivity error, and an unknown host key is not
distinguished from a changed one.
*/
package remote
