package vip

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// Arbitrator binds and unbinds a floating address on a network
// interface, and drives arping to announce the move. It is the thing
// the failover engine calls after an election decides on a new primary.
type Arbitrator struct {
	arpingCmd    string
	sudo         bool
	sudoPassword string
}

// New returns an Arbitrator. arpingCmd is typically "arping" (resolved
// via PATH) but may be an absolute path set in config.
func New(arpingCmd string, sudo bool, sudoPassword string) *Arbitrator {
	if arpingCmd == "" {
		arpingCmd = "arping"
	}
	return &Arbitrator{arpingCmd: arpingCmd, sudo: sudo, sudoPassword: sudoPassword}
}

// Bind adds vip (in CIDR form, e.g. "10.0.0.5/24") to iface and
// broadcasts a gratuitous ARP for it. It is a no-op if the address is
// already present, satisfying idempotence under repeated calls.
func (a *Arbitrator) Bind(ctx context.Context, vip, iface string) error {
	bound, err := a.isBound(ctx, vip, iface)
	if err != nil {
		return err
	}
	if bound {
		return nil
	}

	if _, err := a.run(ctx, "ip", "addr", "add", vip, "dev", iface); err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "vip.Bind", err)
	}

	addr, _, _ := strings.Cut(vip, "/")
	if _, err := a.run(ctx, a.arpingCmd, "-U", "-c", "3", "-I", iface, addr); err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "vip.Bind", fmt.Errorf("address bound but arping failed: %w", err))
	}
	return nil
}

// Unbind removes vip from iface. It is a no-op if the address is
// already absent.
func (a *Arbitrator) Unbind(ctx context.Context, vip, iface string) error {
	bound, err := a.isBound(ctx, vip, iface)
	if err != nil {
		return err
	}
	if !bound {
		return nil
	}

	if _, err := a.run(ctx, "ip", "addr", "del", vip, "dev", iface); err != nil {
		return rerrors.New(rerrors.ProtocolLocal, "vip.Unbind", err)
	}
	return nil
}

// isBound reports whether vip is already assigned to iface, by parsing
// `ip addr show`.
func (a *Arbitrator) isBound(ctx context.Context, vip, iface string) (bool, error) {
	out, err := a.run(ctx, "ip", "addr", "show", "dev", iface)
	if err != nil {
		return false, rerrors.New(rerrors.ProtocolLocal, "vip.isBound", err)
	}

	for _, line := range strings.Split(out, "\n") {
		if matchesAddr(strings.TrimSpace(line), vip) {
			return true, nil
		}
	}
	return false, nil
}

// matchesAddr reports whether an `ip addr show` output line carries the
// address portion of vip (ignoring vip's own prefix length, since the
// kernel may report a different one than the caller passed in).
func matchesAddr(line, vip string) bool {
	if !strings.HasPrefix(line, "inet ") {
		return false
	}
	addr, _, _ := strings.Cut(vip, "/")
	return strings.Contains(line, addr+"/")
}

// run executes name with args, prefixing the configured privilege
// escalation helper when sudo is configured and the process is not
// running as root already, and piping the configured password to its
// stdin.
func (a *Arbitrator) run(ctx context.Context, name string, args ...string) (string, error) {
	useSudo := a.sudo && os.Geteuid() != 0
	argv := append([]string{name}, args...)
	if useSudo {
		argv = append([]string{"sudo", "-S"}, argv...)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if useSudo && a.sudoPassword != "" {
		cmd.Stdin = strings.NewReader(a.sudoPassword + "\n")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w (stderr: %s)", strings.Join(argv, " "), err, stderr.String())
	}
	return stdout.String(), nil
}
