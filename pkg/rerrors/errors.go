package rerrors

import "fmt"

// Kind classifies a failure the way repmgr's documentation does, so that
// callers can decide whether to retry, surface, or ignore it.
type Kind int

const (
	// Unknown covers anything that hasn't been classified.
	Unknown Kind = iota
	// Configuration covers malformed conninfo, unknown config keys, bad values.
	Configuration
	// Connectivity covers unreachable database or replication connections.
	Connectivity
	// Catalog covers query failures and row-not-found conditions.
	Catalog
	// ProtocolLocal covers the engine refusing an operation (promote, drop slot).
	ProtocolLocal
	// FileSystem covers unreadable data directories and truncated control files.
	FileSystem
	// Consistency covers cluster-wide invariant violations (two primaries seen).
	Consistency
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Connectivity:
		return "connectivity"
	case Catalog:
		return "catalog"
	case ProtocolLocal:
		return "protocol-local"
	case FileSystem:
		return "file-system"
	case Consistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and an operation label. Returns nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err, returning Unknown if err doesn't carry one.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if k, ok := err.(*Error); ok {
			e = k
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return Unknown
	}
	return e.Kind
}

// ExitCode is the process exit status contract from §6 of the CLI surface.
type ExitCode int

const (
	ExitSuccess        ExitCode = 0
	ExitBadConfig      ExitCode = 1
	ExitDbConn         ExitCode = 2
	ExitNoUxStart      ExitCode = 3
	ExitSwitchoverFail ExitCode = 4
	ExitRejoinFail     ExitCode = 5
	ExitPromotionFail  ExitCode = 6
	ExitNodeStatus     ExitCode = 7
	ExitLocalCommand   ExitCode = 8
	ExitOutOfMemory    ExitCode = 9
)

// ExitCodeFor maps a Kind to the generic exit code a one-shot command
// should use when it fails with that Kind. Callers that need a more
// specific code (RejoinFail, SwitchoverFail, PromotionFail, NodeStatus)
// set it explicitly instead of going through this table.
func ExitCodeFor(kind Kind) ExitCode {
	switch kind {
	case Configuration:
		return ExitBadConfig
	case Connectivity:
		return ExitDbConn
	case FileSystem:
		return ExitNoUxStart
	default:
		return ExitDbConn
	}
}
