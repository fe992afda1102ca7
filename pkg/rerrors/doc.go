// Package rerrors defines the error-kind taxonomy shared across repmgrd
// and repmgr: configuration, connectivity, catalog, protocol-local,
// file-system and consistency failures, plus the mapping from a Kind to
// the control tool's process exit code.
package rerrors
