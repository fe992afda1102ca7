package nodeaction

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/repmgrd/pkg/catalog"
	"github.com/cuemby/repmgrd/pkg/config"
	"github.com/cuemby/repmgrd/pkg/localfile"
	"github.com/cuemby/repmgrd/pkg/pool"
)

// CheckSeverity is one sub-check's verdict, ordered so the worst of a
// set of checks can be picked with a plain max.
type CheckSeverity int

const (
	SeverityOK CheckSeverity = iota
	SeverityWarning
	SeverityCritical
	SeverityUnknown
)

// CheckItem is a single sub-check's name, severity and human-readable
// detail. PerfLabel, Value, Warn and Crit carry a check's measurement
// and configured thresholds through to NagiosFormatter, which renders
// them as "label=value;warn;crit" when HasThresholds is set; checks
// with no configured thresholds leave it false and the formatter
// falls back to extracting a leading count straight out of Detail.
type CheckItem struct {
	Name          string
	Severity      CheckSeverity
	Detail        string
	PerfLabel     string
	Value         float64
	Warn          float64
	Crit          float64
	HasThresholds bool
}

// CheckReport is `node check`'s full result, a set of independent
// sub-checks plus the worst severity among them.
type CheckReport struct {
	NodeID int32
	Items  []CheckItem
	Worst  CheckSeverity
}

func (r *CheckReport) add(item CheckItem) {
	r.Items = append(r.Items, item)
	if item.Severity > r.Worst {
		r.Worst = item.Severity
	}
}

// Check runs the §4.7 `node check` sub-checks: archive-ready count,
// downstream-attached count (a downstream counts as attached when its
// replication slot is active), upstream attachment, replication lag,
// declared role vs observed recovery state, data directory, and whether
// the daemon is running. Missing or inactive slots are not reported as
// a sub-check of their own.
func Check(ctx context.Context, cat catalog.Catalog, pl *pool.Pool, cfg *config.Config) (*CheckReport, error) {
	report := &CheckReport{NodeID: cfg.NodeID}

	node, status, err := cat.GetNodeRecord(ctx, cfg.NodeID)
	if err != nil {
		return nil, err
	}
	if status != catalog.RecordFound {
		report.add(CheckItem{Name: "node_record", Severity: SeverityCritical, Detail: "node is not registered in the catalog"})
		return report, nil
	}

	checkArchiveReady(report, cfg)
	checkDaemonRunning(report, cat, ctx)
	checkDataDirectory(report, cfg)

	conn, err := pl.Open(ctx, cfg.Conninfo)
	if err != nil {
		report.add(CheckItem{Name: "connection", Severity: SeverityCritical, Detail: "cannot connect to local engine: " + err.Error()})
		return report, nil
	}
	defer conn.Close()

	checkRoleVsRecovery(ctx, report, conn, node)

	if node.Type == catalog.NodeTypePrimary {
		checkDownstreamAttached(ctx, report, cat, node.ID)
	} else if node.UpstreamNodeID != nil {
		checkUpstreamAttached(ctx, report, cat, node.Name)
		checkReplicationLag(ctx, report, conn, cfg)
	}

	return report, nil
}

func checkArchiveReady(report *CheckReport, cfg *config.Config) {
	count, err := localfile.CountArchiveReady(cfg.DataDirectory)
	if err != nil {
		report.add(CheckItem{Name: "archive_ready", Severity: SeverityUnknown, Detail: "could not read archive_status: " + err.Error()})
		return
	}

	item := CheckItem{
		Name: "archive_ready", Detail: archiveDetail(count),
		PerfLabel: "files", Value: float64(count),
		Warn: float64(cfg.ArchiveReadyWarning), Crit: float64(cfg.ArchiveReadyCritical),
		HasThresholds: true,
	}
	switch {
	case cfg.ArchiveReadyCritical > 0 && count >= cfg.ArchiveReadyCritical:
		item.Severity = SeverityCritical
	case cfg.ArchiveReadyWarning > 0 && count >= cfg.ArchiveReadyWarning:
		item.Severity = SeverityWarning
	default:
		item.Severity = SeverityOK
	}
	report.add(item)
}

func archiveDetail(count int) string {
	if count == 1 {
		return "1 file awaiting archival"
	}
	return strconv.Itoa(count) + " files awaiting archival"
}

func checkDaemonRunning(report *CheckReport, cat catalog.Catalog, ctx context.Context) {
	running, err := cat.RepmgrdIsRunning(ctx)
	if err != nil {
		report.add(CheckItem{Name: "daemon", Severity: SeverityUnknown, Detail: "could not determine daemon status: " + err.Error()})
		return
	}
	if running {
		report.add(CheckItem{Name: "daemon", Severity: SeverityOK, Detail: "repmgrd is running"})
	} else {
		report.add(CheckItem{Name: "daemon", Severity: SeverityCritical, Detail: "repmgrd is not running"})
	}
}

func checkDataDirectory(report *CheckReport, cfg *config.Config) {
	if !localfile.IsUxDir(cfg.DataDirectory) {
		report.add(CheckItem{Name: "data_directory", Severity: SeverityCritical, Detail: "configured data directory is not a valid cluster data directory"})
		return
	}
	report.add(CheckItem{Name: "data_directory", Severity: SeverityOK, Detail: "data directory is valid"})
}

func checkRoleVsRecovery(ctx context.Context, report *CheckReport, conn *pool.Conn, node *catalog.Node) {
	var inRecovery bool
	if err := conn.PG().QueryRow(ctx, `SELECT pg_is_in_recovery()`).Scan(&inRecovery); err != nil {
		report.add(CheckItem{Name: "role", Severity: SeverityUnknown, Detail: "could not read recovery state: " + err.Error()})
		return
	}
	declaredPrimary := node.Type == catalog.NodeTypePrimary
	if declaredPrimary == inRecovery {
		report.add(CheckItem{Name: "role", Severity: SeverityCritical, Detail: "declared role does not match observed recovery state"})
		return
	}
	report.add(CheckItem{Name: "role", Severity: SeverityOK, Detail: "declared role matches observed recovery state"})
}

func checkDownstreamAttached(ctx context.Context, report *CheckReport, cat catalog.Catalog, nodeID int32) {
	downstream, err := cat.GetDownstreamNodeRecords(ctx, nodeID)
	if err != nil {
		report.add(CheckItem{Name: "downstream", Severity: SeverityUnknown, Detail: "could not list downstream nodes: " + err.Error()})
		return
	}
	attached := 0
	for _, n := range downstream {
		if n.SlotName == "" {
			continue
		}
		if _, slotStatus, err := cat.GetSlotRecord(ctx, n.SlotName); err == nil && slotStatus == catalog.SlotActive {
			attached++
		}
	}
	report.add(CheckItem{Name: "downstream", Severity: SeverityOK, Detail: strconv.Itoa(attached) + "/" + strconv.Itoa(len(downstream)) + " downstream nodes attached"})
}

func checkUpstreamAttached(ctx context.Context, report *CheckReport, cat catalog.Catalog, nodeName string) {
	attached, err := cat.GetNodeAttached(ctx, nodeName)
	if err != nil {
		report.add(CheckItem{Name: "upstream", Severity: SeverityUnknown, Detail: "could not determine upstream attachment: " + err.Error()})
		return
	}
	switch attached {
	case catalog.NodeAttached, catalog.NodeAttachedAttaching:
		report.add(CheckItem{Name: "upstream", Severity: SeverityOK, Detail: "attached to upstream"})
	default:
		report.add(CheckItem{Name: "upstream", Severity: SeverityCritical, Detail: "not attached to upstream"})
	}
}

func checkReplicationLag(ctx context.Context, report *CheckReport, conn *pool.Conn, cfg *config.Config) {
	var lagSeconds float64
	err := conn.PG().QueryRow(ctx, `SELECT coalesce(extract(epoch from (now() - pg_last_xact_replay_timestamp())), 0)`).Scan(&lagSeconds)
	if err != nil {
		report.add(CheckItem{Name: "replication_lag", Severity: SeverityUnknown, Detail: "could not read replication lag: " + err.Error()})
		return
	}
	lag := time.Duration(lagSeconds * float64(time.Second))
	item := CheckItem{
		Name: "replication_lag", Detail: lag.String() + " behind",
		PerfLabel: "seconds_behind", Value: lagSeconds,
		Warn: cfg.ReplicationLagWarning.Seconds(), Crit: cfg.ReplicationLagCritical.Seconds(),
		HasThresholds: true,
	}
	switch {
	case cfg.ReplicationLagCritical > 0 && lag >= cfg.ReplicationLagCritical:
		item.Severity = SeverityCritical
	case cfg.ReplicationLagWarning > 0 && lag >= cfg.ReplicationLagWarning:
		item.Severity = SeverityWarning
	default:
		item.Severity = SeverityOK
	}
	report.add(item)
}
