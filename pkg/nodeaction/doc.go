/*
Package nodeaction implements the one-shot control-tool surface: status,
check, service, rejoin, control, and startup. Each function is a plain
composition of pkg/catalog, pkg/localfile, and pkg/remote — nodeaction
holds no state of its own and opens whatever connections it needs for
the single call.

Check's report separates measurement from rendering: CheckReport and
CheckItem hold what was found, and a Formatter renders it as text, CSV,
a nagios-plugin line, or an option-style "key=value" block for
programmatic use over SSH.
*/
package nodeaction
