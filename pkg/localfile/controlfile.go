package localfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// Version identifies which of the four control-file layouts a data
// directory uses, keyed off its engine major version.
type Version int

const (
	VUnknown Version = iota
	V94
	V95
	V11
	V12
)

func (v Version) String() string {
	switch v {
	case V94:
		return "9.4"
	case V95:
		return "9.5-10"
	case V11:
		return "11"
	case V12:
		return "12+"
	default:
		return "unknown"
	}
}

// DBState mirrors the engine's control-file DBState enum.
type DBState int32

const (
	DBStartup              DBState = 0
	DBShutdowned           DBState = 1
	DBShutdownedInRecovery DBState = 2
	DBShutdowning          DBState = 3
	DBInCrashRecovery      DBState = 4
	DBInArchiveRecovery    DBState = 5
	DBInProduction         DBState = 6
)

func (s DBState) String() string {
	switch s {
	case DBStartup:
		return "starting up"
	case DBShutdowned:
		return "shut down"
	case DBShutdownedInRecovery:
		return "shut down in recovery"
	case DBShutdowning:
		return "shutting down"
	case DBInCrashRecovery:
		return "in crash recovery"
	case DBInArchiveRecovery:
		return "in archive recovery"
	case DBInProduction:
		return "in production"
	default:
		return "unknown"
	}
}

// LSN is a log sequence number, stored natively as a 64-bit integer and
// conventionally printed as two hex halves separated by a slash.
type LSN uint64

func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint64(l)>>32, uint64(l)&0xFFFFFFFF)
}

// ParseLSN parses the engine's conventional "hi/lo" hex notation, as
// returned by pg_last_wal_receive_lsn() and friends. An empty string
// parses to zero, the value a standby with no replication history reports.
func ParseLSN(s string) (LSN, error) {
	if s == "" {
		return 0, nil
	}
	hi, lo, ok := strings.Cut(s, "/")
	if !ok {
		return 0, rerrors.New(rerrors.Configuration, "localfile.ParseLSN", fmt.Errorf("malformed LSN %q", s))
	}
	hiVal, err := strconv.ParseUint(hi, 16, 32)
	if err != nil {
		return 0, rerrors.New(rerrors.Configuration, "localfile.ParseLSN", err)
	}
	loVal, err := strconv.ParseUint(lo, 16, 32)
	if err != nil {
		return 0, rerrors.New(rerrors.Configuration, "localfile.ParseLSN", err)
	}
	return LSN(hiVal<<32 | loVal), nil
}

// ControlFileInfo is the subset of the control file repmgrd cares about.
type ControlFileInfo struct {
	SystemIdentifier       uint64
	State                  DBState
	CheckPoint             LSN
	DataChecksumVersion    uint32
	Timeline               uint32
	MinRecoveryEndTimeline uint32
	MinRecoveryPoint       LSN
}

const controlFileRelPath = "global/ux_control"
const versionFileName = "UX_VERSION"

// IsUxDir reports whether dataDir looks like an engine data directory:
// it must contain a version file and a control file.
func IsUxDir(dataDir string) bool {
	if _, err := os.Stat(filepath.Join(dataDir, versionFileName)); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(dataDir, controlFileRelPath)); err != nil {
		return false
	}
	return true
}

func detectVersion(dataDir string) (Version, error) {
	raw, err := os.ReadFile(filepath.Join(dataDir, versionFileName))
	if err != nil {
		return VUnknown, rerrors.New(rerrors.FileSystem, "localfile.detectVersion", err)
	}
	s := strings.TrimSpace(string(raw))
	parts := strings.SplitN(s, ".", 2)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return VUnknown, rerrors.New(rerrors.FileSystem, "localfile.detectVersion",
			fmt.Errorf("unreadable version string %q", s))
	}

	switch {
	case major < 9:
		return VUnknown, rerrors.New(rerrors.FileSystem, "localfile.detectVersion",
			fmt.Errorf("engine major version %d is not supported", major))
	case major == 9:
		if len(parts) < 2 {
			return VUnknown, rerrors.New(rerrors.FileSystem, "localfile.detectVersion",
				fmt.Errorf("incomplete 9.x version string %q", s))
		}
		minorStr, _, _ := strings.Cut(parts[1], ".")
		minor, err := strconv.Atoi(minorStr)
		if err != nil {
			return VUnknown, rerrors.New(rerrors.FileSystem, "localfile.detectVersion", err)
		}
		if minor == 4 {
			return V94, nil
		}
		return V95, nil // 9.5, 9.6
	case major == 10:
		return V95, nil // control file layout unchanged from 9.5 through 10
	case major == 11:
		return V11, nil
	default:
		return V12, nil
	}
}

// Inspect reads and parses the control file, auto-detecting its layout
// from the data directory's version file.
func Inspect(dataDir string) (*ControlFileInfo, error) {
	version, err := detectVersion(dataDir)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dataDir, controlFileRelPath))
	if err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.Inspect", err)
	}

	switch version {
	case V94:
		return parse94(raw)
	case V95:
		return parse95(raw)
	case V11:
		return parse11(raw)
	case V12:
		return parse12(raw)
	default:
		return nil, rerrors.New(rerrors.FileSystem, "localfile.Inspect",
			fmt.Errorf("unrecognised control file layout"))
	}
}

// Each layout below walks the field order of the corresponding
// ControlFileData struct, with explicit padding to the natural 8-byte
// LP64 alignment the engine is always built with. Only the fields
// ControlFileInfo needs are actually exposed; the rest are read and
// discarded in declaration order so offsets downstream stay correct.

func parse94(raw []byte) (*ControlFileInfo, error) {
	return parseFixedHeader(raw, V94)
}

func parse95(raw []byte) (*ControlFileInfo, error) {
	return parseFixedHeader(raw, V95)
}

func parse11(raw []byte) (*ControlFileInfo, error) {
	return parseFixedHeader(raw, V11)
}

func parse12(raw []byte) (*ControlFileInfo, error) {
	return parseFixedHeader(raw, V12)
}

// parseFixedHeader reads the fields common to the header of every layout
// (system_identifier, state, checkPoint, data_checksum_version aren't all
// at the same offset across versions, so each version gets its own
// cursor walk rather than one shared struct).
func parseFixedHeader(raw []byte, version Version) (*ControlFileInfo, error) {
	r := bytes.NewReader(raw)
	info := &ControlFileInfo{}

	if err := binary.Read(r, binary.LittleEndian, &info.SystemIdentifier); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}

	var controlVersion, catalogVersion uint32
	if err := binary.Read(r, binary.LittleEndian, &controlVersion); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &catalogVersion); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}

	var state int32
	if err := binary.Read(r, binary.LittleEndian, &state); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	info.State = DBState(state)

	// 4 bytes of padding bring the cursor to 8-byte alignment for the
	// int64 ux_time_t that follows.
	if _, err := r.Seek(4, 1); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	var controlTime int64
	if err := binary.Read(r, binary.LittleEndian, &controlTime); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}

	var checkPoint uint64
	if err := binary.Read(r, binary.LittleEndian, &checkPoint); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	info.CheckPoint = LSN(checkPoint)

	// ControlFileData94/95 carry prevCheckPoint immediately after
	// checkPoint; 11 and 12 dropped that field.
	if version == V94 || version == V95 {
		var prev uint64
		if err := binary.Read(r, binary.LittleEndian, &prev); err != nil {
			return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
		}
	}

	// checkPointCopy's first two fields give us the timeline without
	// needing the rest of the CheckPoint struct.
	var redo uint64
	if err := binary.Read(r, binary.LittleEndian, &redo); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	var timeline, prevTimeline uint32
	if err := binary.Read(r, binary.LittleEndian, &timeline); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &prevTimeline); err != nil {
		return nil, rerrors.New(rerrors.FileSystem, "localfile.parseFixedHeader", err)
	}
	info.Timeline = timeline

	// The remainder of checkPointCopy and unloggedLSN are not needed;
	// minRecoveryPoint/minRecoveryPointTLI are read by a best-effort scan
	// for the byte pattern is infeasible, so versions that need them use
	// readMinRecovery with a version-specific skip count instead.
	minRecoveryPoint, minRecoveryTLI, err := readMinRecovery(r, version)
	if err != nil {
		return nil, err
	}
	info.MinRecoveryPoint = LSN(minRecoveryPoint)
	info.MinRecoveryEndTimeline = minRecoveryTLI

	checksumVersion, err := readDataChecksumVersion(r, version)
	if err != nil {
		return nil, err
	}
	info.DataChecksumVersion = checksumVersion

	_ = prevTimeline
	return info, nil
}

// readMinRecovery skips the remainder of the version-specific CheckPoint
// copy and the unloggedLSN field, then reads minRecoveryPoint and
// minRecoveryPointTLI. The skip counts are derived from each CheckPoint
// struct's remaining field list in controldata.h.
func readMinRecovery(r *bytes.Reader, version Version) (uint64, uint32, error) {
	// Bytes remaining in the CheckPoint copy after redo/ThisTimeLineID/
	// PrevTimeLineID, per-version, plus unloggedLSN (8 bytes) right after.
	var remaining int64
	switch version {
	case V94:
		// fullPageWrites(4 pad) nextXidEpoch(4) nextXid(4) nextOid(4)
		// nextMulti(4) nextMultiOffset(8) oldestXid(4) oldestXidDB(4)
		// oldestMulti(4) oldestMultiDB(4) time(8) oldestActiveXid(4) + pad
		remaining = 4 + 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + 8 + 4 + 4
	case V95, V11:
		// as 94 plus oldestCommitTsXid(4) newestCommitTsXid(4)
		remaining = 4 + 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4
	case V12:
		// fullPageWrites(4 pad) nextFullXid(8) nextOid(4) nextMulti(4)
		// nextMultiOffset(8) oldestXid(4) oldestXidDB(4) oldestMulti(4)
		// oldestMultiDB(4) time(8) oldestCommitTsXid(4) newestCommitTsXid(4)
		// oldestActiveXid(4) + pad
		remaining = 4 + 8 + 4 + 4 + 8 + 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4 + 4
	}

	if _, err := r.Seek(remaining, 1); err != nil {
		return 0, 0, rerrors.New(rerrors.FileSystem, "localfile.readMinRecovery", err)
	}

	var unloggedLSN uint64
	if err := binary.Read(r, binary.LittleEndian, &unloggedLSN); err != nil {
		return 0, 0, rerrors.New(rerrors.FileSystem, "localfile.readMinRecovery", err)
	}

	var minRecoveryPoint uint64
	if err := binary.Read(r, binary.LittleEndian, &minRecoveryPoint); err != nil {
		return 0, 0, rerrors.New(rerrors.FileSystem, "localfile.readMinRecovery", err)
	}
	var minRecoveryTLI uint32
	if err := binary.Read(r, binary.LittleEndian, &minRecoveryTLI); err != nil {
		return 0, 0, rerrors.New(rerrors.FileSystem, "localfile.readMinRecovery", err)
	}

	return minRecoveryPoint, minRecoveryTLI, nil
}

// readDataChecksumVersion continues directly where readMinRecovery left
// the cursor, right after minRecoveryPointTLI, and walks the rest of
// ControlFileData9x/11/12's scalar settings block up to
// data_checksum_version. The field list and which ones only exist on
// some versions (max_wal_senders added in 12, track_commit_timestamp
// added in 9.5, enableIntTimes dropped in 12) come straight out of
// controldata.h; the padding between bool/int fields and the next
// 4- or 8-byte-aligned field follows the same LP64 rule the rest of
// this file already assumes.
func readDataChecksumVersion(r *bytes.Reader, version Version) (uint32, error) {
	fail := func(err error) (uint32, error) {
		return 0, rerrors.New(rerrors.FileSystem, "localfile.readDataChecksumVersion", err)
	}

	skip := func(n int64) error {
		_, err := r.Seek(n, 1)
		return err
	}

	if err := skip(4); err != nil { // pad before backupStartPoint
		return fail(err)
	}
	if err := skip(16); err != nil { // backupStartPoint, backupEndPoint
		return fail(err)
	}
	if err := skip(4); err != nil { // backupEndRequired + pad
		return fail(err)
	}
	if err := skip(4); err != nil { // wal_level
		return fail(err)
	}
	if err := skip(4); err != nil { // wal_log_hints + pad
		return fail(err)
	}
	if err := skip(8); err != nil { // MaxConnections, max_worker_processes
		return fail(err)
	}
	if version == V12 {
		if err := skip(4); err != nil { // max_wal_senders
			return fail(err)
		}
	}
	if err := skip(8); err != nil { // max_prepared_xacts, max_locks_per_xact
		return fail(err)
	}
	if version == V95 || version == V11 || version == V12 {
		if err := skip(4); err != nil { // track_commit_timestamp + pad
			return fail(err)
		}
	}
	if err := skip(4); err != nil { // maxAlign
		return fail(err)
	}
	if err := skip(8); err != nil { // floatFormat (double)
		return fail(err)
	}
	if err := skip(4 * 8); err != nil { // blcksz..loblksize, eight uint32 fields
		return fail(err)
	}
	if version == V94 || version == V95 || version == V11 {
		if err := skip(4); err != nil { // enableIntTimes + pad
			return fail(err)
		}
	}
	if err := skip(4); err != nil { // float4ByVal, float8ByVal + pad
		return fail(err)
	}

	var checksumVersion uint32
	if err := binary.Read(r, binary.LittleEndian, &checksumVersion); err != nil {
		return fail(err)
	}
	return checksumVersion, nil
}

// CountArchiveReady counts the files waiting to be archived in
// pg_wal/archive_status (or the pre-10 pg_xlog/archive_status path),
// used by node check's "WAL archiving" threshold check.
func CountArchiveReady(dataDir string) (int, error) {
	for _, sub := range []string{"pg_wal/archive_status", "pg_xlog/archive_status"} {
		dir := filepath.Join(dataDir, sub)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return 0, rerrors.New(rerrors.FileSystem, "localfile.CountArchiveReady", err)
		}
		count := 0
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), ".ready") {
				count++
			}
		}
		return count, nil
	}
	return 0, rerrors.New(rerrors.FileSystem, "localfile.CountArchiveReady",
		fmt.Errorf("no archive_status directory under %s", dataDir))
}
