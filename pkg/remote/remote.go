// Package remote runs the commands repmgrd shells out to: notification
// and resync hooks on the local node, and the password-authenticated SSH
// fallback used where key-based access isn't set up.
package remote

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// LocalCommand runs cmdString through the shell and captures both
// streams. ok reports whether the process exited zero; err is only set
// for failures to start the process at all.
func LocalCommand(ctx context.Context, cmdString string) (stdout, stderr string, ok bool, err error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdString)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()
	if runErr == nil {
		return stdout, stderr, true, nil
	}
	if _, isExit := runErr.(*exec.ExitError); isExit {
		return stdout, stderr, false, nil
	}
	return stdout, stderr, false, rerrors.New(rerrors.Connectivity, "remote.LocalCommand", runErr)
}

// TemplateVars carries the substitution values ExpandTemplate fills into
// an event-notification or resync command string.
type TemplateVars struct {
	NodeID        int32
	NodeName      string
	EventType     string
	Details       string
	Successful    bool
	Timestamp     string
	Conninfo      string
	PrimaryNodeID int32
}

// maxExpandedLen bounds the rendered command line, matching the
// notification command's practical exec argv limit; any %d detail text
// past this is truncated rather than overflowing the shell invocation.
const maxExpandedLen = 8192

// ExpandTemplate substitutes repmgrd's event-notification placeholders
// into tmpl: %n node id, %a node name, %e event type, %d details
// (double-quote escaped), %s success flag (1/0), %t timestamp, %c
// conninfo, %p primary node id, %% literal percent.
func ExpandTemplate(tmpl string, ev TemplateVars) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' || i == len(tmpl)-1 {
			b.WriteByte(tmpl[i])
			continue
		}
		i++
		switch tmpl[i] {
		case 'n':
			b.WriteString(strconv.Itoa(int(ev.NodeID)))
		case 'a':
			b.WriteString(ev.NodeName)
		case 'e':
			b.WriteString(ev.EventType)
		case 'd':
			b.WriteString(strings.ReplaceAll(ev.Details, `"`, `\"`))
		case 's':
			if ev.Successful {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		case 't':
			b.WriteString(ev.Timestamp)
		case 'c':
			b.WriteString(ev.Conninfo)
		case 'p':
			b.WriteString(strconv.Itoa(int(ev.PrimaryNodeID)))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(tmpl[i])
		}
		if b.Len() > maxExpandedLen {
			return b.String()[:maxExpandedLen]
		}
	}
	return b.String()
}
