package localfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildControlFile94 writes a synthetic control file in the 94/95/11
// common prefix shape so parse94/parse95/parse11 (same field widths up
// to the CheckPoint copy) can be exercised without a live engine.
func buildControlFile94(t *testing.T, systemID uint64, state int32, checkPoint uint64, timeline uint32, withPrevCheckPoint bool) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := func(v any) {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
	}

	w(systemID)
	w(uint32(1)) // control version
	w(uint32(1)) // catalog version
	w(state)
	w(uint32(0)) // padding to 8-byte align
	w(int64(0))  // control file time
	w(checkPoint)
	if withPrevCheckPoint {
		w(uint64(0))
	}
	// checkPointCopy: redo, ThisTimeLineID, PrevTimeLineID
	w(uint64(0))
	w(timeline)
	w(timeline)
	// remainder of CheckPoint94 (13 fields totalling 60 bytes as counted
	// in readMinRecovery's V94 branch)
	buf.Write(make([]byte, 60))
	w(uint64(0))    // unloggedLSN
	w(uint64(0xAB)) // minRecoveryPoint
	w(uint32(7))    // minRecoveryPointTLI
	writeChecksumTail(w, V94, 1)

	return buf.Bytes()
}

// buildControlFile builds a synthetic control file for version, which
// must be V95, V11 or V12: these three share the same 68-byte
// checkPointCopy remainder (readMinRecovery's V95/V11/V12 branches),
// and only differ in whether prevCheckPoint is present.
func buildControlFile(t *testing.T, version Version, systemID uint64, state int32, checkPoint uint64, timeline uint32, minRecoveryPoint uint64, minRecoveryTLI uint32, checksumVersion uint32) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	w := func(v any) {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, v))
	}

	w(systemID)
	w(uint32(1)) // control version
	w(uint32(1)) // catalog version
	w(state)
	w(uint32(0)) // padding to 8-byte align
	w(int64(0))  // control file time
	w(checkPoint)
	if version == V95 {
		w(uint64(0)) // prevCheckPoint, dropped in 11 and 12
	}
	// checkPointCopy: redo, ThisTimeLineID, PrevTimeLineID
	w(uint64(0))
	w(timeline)
	w(timeline)
	// remainder of CheckPoint95/CheckPoint12 (68 bytes, per
	// readMinRecovery's V95/V11/V12 branches)
	buf.Write(make([]byte, 68))
	w(uint64(0)) // unloggedLSN
	w(minRecoveryPoint)
	w(minRecoveryTLI)
	writeChecksumTail(w, version, checksumVersion)

	return buf.Bytes()
}

// writeChecksumTail writes the fields readDataChecksumVersion walks
// through between minRecoveryPointTLI and data_checksum_version,
// mirroring the per-version field list in controldata.h. The exact
// values written for the skipped fields don't matter, only their
// widths, since the parser never reads them back.
func writeChecksumTail(w func(any), version Version, checksumVersion uint32) {
	w(uint32(0)) // pad before backupStartPoint
	w(uint64(0)) // backupStartPoint
	w(uint64(0)) // backupEndPoint
	w(int32(0))  // backupEndRequired (bool) + pad
	w(int32(0))  // wal_level
	w(int32(0))  // wal_log_hints (bool) + pad
	w(int32(0))  // MaxConnections
	w(int32(0))  // max_worker_processes
	if version == V12 {
		w(int32(0)) // max_wal_senders
	}
	w(int32(0)) // max_prepared_xacts
	w(int32(0)) // max_locks_per_xact
	if version == V95 || version == V11 || version == V12 {
		w(int32(0)) // track_commit_timestamp (bool) + pad
	}
	w(uint32(0))  // maxAlign
	w(float64(0)) // floatFormat
	for i := 0; i < 8; i++ {
		w(uint32(0)) // blcksz, relseg_size, xlog_blcksz, xlog_seg_size, nameDataLen, indexMaxKeys, toast_max_chunk_size, loblksize
	}
	if version == V94 || version == V95 || version == V11 {
		w(int32(0)) // enableIntTimes (bool) + pad
	}
	w(int32(0)) // float4ByVal, float8ByVal + pad
	w(checksumVersion)
}

func writeDataDir(t *testing.T, versionString string, controlFile []byte) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, versionFileName), []byte(versionString), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "global"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, controlFileRelPath), controlFile, 0o644))
	return dir
}

func TestInspectV94Layout(t *testing.T) {
	cf := buildControlFile94(t, 1234567890, int64ToInt32(DBInProduction), 0x100000000, 3, true)
	dir := writeDataDir(t, "9.4", cf)

	info, err := Inspect(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 1234567890, info.SystemIdentifier)
	assert.Equal(t, DBInProduction, info.State)
	assert.Equal(t, LSN(0x100000000), info.CheckPoint)
	assert.EqualValues(t, 3, info.Timeline)
	assert.Equal(t, LSN(0xAB), info.MinRecoveryPoint)
	assert.EqualValues(t, 7, info.MinRecoveryEndTimeline)
	assert.EqualValues(t, 1, info.DataChecksumVersion)
}

func TestInspectV95Layout(t *testing.T) {
	cf := buildControlFile(t, V95, 2234567890, int64ToInt32(DBInArchiveRecovery), 0x200000000, 5, 0xCD, 9, 1)
	dir := writeDataDir(t, "9.5.4", cf)

	info, err := Inspect(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 2234567890, info.SystemIdentifier)
	assert.Equal(t, DBInArchiveRecovery, info.State)
	assert.Equal(t, LSN(0x200000000), info.CheckPoint)
	assert.EqualValues(t, 5, info.Timeline)
	assert.Equal(t, LSN(0xCD), info.MinRecoveryPoint)
	assert.EqualValues(t, 9, info.MinRecoveryEndTimeline)
	assert.EqualValues(t, 1, info.DataChecksumVersion)
}

func TestInspectV11Layout(t *testing.T) {
	cf := buildControlFile(t, V11, 3234567890, int64ToInt32(DBShutdowned), 0x300000000, 8, 0xEF, 11, 1)
	dir := writeDataDir(t, "11.2", cf)

	info, err := Inspect(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 3234567890, info.SystemIdentifier)
	assert.Equal(t, DBShutdowned, info.State)
	assert.Equal(t, LSN(0x300000000), info.CheckPoint)
	assert.EqualValues(t, 8, info.Timeline)
	assert.Equal(t, LSN(0xEF), info.MinRecoveryPoint)
	assert.EqualValues(t, 11, info.MinRecoveryEndTimeline)
	assert.EqualValues(t, 1, info.DataChecksumVersion)
}

func TestInspectV12Layout(t *testing.T) {
	cf := buildControlFile(t, V12, 4234567890, int64ToInt32(DBInCrashRecovery), 0x400000000, 13, 0x12, 14, 1)
	dir := writeDataDir(t, "14.5", cf)

	info, err := Inspect(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 4234567890, info.SystemIdentifier)
	assert.Equal(t, DBInCrashRecovery, info.State)
	assert.Equal(t, LSN(0x400000000), info.CheckPoint)
	assert.EqualValues(t, 13, info.Timeline)
	assert.Equal(t, LSN(0x12), info.MinRecoveryPoint)
	assert.EqualValues(t, 14, info.MinRecoveryEndTimeline)
	assert.EqualValues(t, 1, info.DataChecksumVersion)
}

func TestDetectVersionSelectsLayout(t *testing.T) {
	tests := []struct {
		versionString string
		want          Version
	}{
		{"9.4.1", V94},
		{"9.5.3", V95},
		{"9.6.0", V95},
		{"10.1", V95},
		{"11.2", V11},
		{"12.0", V12},
		{"14.5", V12},
	}
	for _, tt := range tests {
		t.Run(tt.versionString, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, versionFileName), []byte(tt.versionString), 0o644))
			v, err := detectVersion(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestDetectVersionRejectsUnsupportedMajor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, versionFileName), []byte("8.4"), 0o644))
	_, err := detectVersion(dir)
	assert.Error(t, err)
}

func TestIsUxDir(t *testing.T) {
	dir := writeDataDir(t, "12.0", buildControlFile94(t, 1, 0, 0, 1, false))
	assert.True(t, IsUxDir(dir))
	assert.False(t, IsUxDir(t.TempDir()))
}

func TestCountArchiveReady(t *testing.T) {
	dir := t.TempDir()
	archDir := filepath.Join(dir, "pg_wal", "archive_status")
	require.NoError(t, os.MkdirAll(archDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archDir, "000000010000000000000001.ready"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(archDir, "000000010000000000000002.ready"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(archDir, "000000010000000000000000.done"), nil, 0o644))

	n, err := CountArchiveReady(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCountArchiveReadyMissingDir(t *testing.T) {
	_, err := CountArchiveReady(t.TempDir())
	assert.Error(t, err)
}

func int64ToInt32(s DBState) int32 {
	return int32(s)
}
