/*
Package localfile inspects a data directory without going through a
database connection: the control file, the WAL archive status directory,
and the marker files that distinguish "this is a real data directory" from
an empty one.

The control file's layout changed across the four engine generations this
package understands (94, 95, 11, 12); field offsets are fixed by the
engine and are reproduced here rather than derived, because the file has
no self-describing schema beyond its version header. The parser only
reads a control file on the host that wrote it and assumes native (LP64)
struct alignment; every multi-byte field is decoded as little-endian, so
a control file written on a big-endian host is not decoded correctly.
*/
package localfile
