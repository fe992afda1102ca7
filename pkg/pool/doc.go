/*
Package pool constructs database connections for repmgrd and repmgr.

It is not a pool in the sql.DB-cache sense: it does not retain
connections between call sites. Each Open* call is a constructor, and
the caller owns the resulting Conn's lifetime — close it when done.
What it does provide is a single place that sets the connection
parameters every caller needs (application_name, search_path,
synchronous_commit) so that every component talks to the catalog the
same way, whether it is the monitoring daemon's long-lived upstream
connection or a one-shot repmgr command.
*/
package pool
