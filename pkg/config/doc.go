/*
Package config loads and validates a repmgr.conf-style configuration file.

The file is a flat `key = value` properties grammar, parsed with
github.com/magiconair/properties. Recognised keys populate a Config
struct; unrecognised keys are collected as warnings rather than treated
as fatal, since operators routinely carry forward keys meant for a
different repmgrd version. Malformed values for a recognised key (a
duration that doesn't parse, an out-of-range priority, an unknown
failover mode) are fatal and reported as rerrors.Configuration errors.

A Config is loaded once and handed around by reference. The only
supported way to change it at runtime is Reload, called from the
monitoring daemon's main loop after a SIGHUP — never from the signal
handler itself, to avoid touching daemon state concurrently with the
loop that reads it.
*/
package config
