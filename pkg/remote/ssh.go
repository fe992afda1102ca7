package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/repmgrd/pkg/rerrors"
)

// SSHPasswordTransport runs a command on a remote host using password
// authentication, for hosts that haven't exchanged a repmgr key. A
// rejected password is reported as rerrors.ProtocolLocal. A rejected host
// key is reported as rerrors.Connectivity, the same Kind as a network
// failure, and an unknown host key is not told apart from a changed one.
type SSHPasswordTransport struct {
	// KnownHosts validates the presented host key. A nil value accepts
	// any key on first contact and never flags a change, matching
	// sshpass's default StrictHostKeyChecking=no posture.
	KnownHosts  ssh.HostKeyCallback
	DialTimeout time.Duration
}

// Run dials host as user with password, runs cmd, and returns its
// combined stdout.
func (t *SSHPasswordTransport) Run(ctx context.Context, host, user, password, cmd string) (string, error) {
	hostKeyCallback := t.KnownHosts
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, "22")
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", rerrors.New(rerrors.Connectivity, "remote.SSHPasswordTransport.Run", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			return "", rerrors.New(rerrors.ProtocolLocal, "remote.SSHPasswordTransport.Run", fmt.Errorf("incorrect password: %w", err))
		}
		return "", rerrors.New(rerrors.Connectivity, "remote.SSHPasswordTransport.Run", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", rerrors.New(rerrors.Connectivity, "remote.SSHPasswordTransport.Run", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out

	if err := session.Run(cmd); err != nil {
		return out.String(), rerrors.New(rerrors.ProtocolLocal, "remote.SSHPasswordTransport.Run", err)
	}
	return out.String(), nil
}

func isAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}
