package vip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsArpingCommand(t *testing.T) {
	a := New("", false, "")
	assert.Equal(t, "arping", a.arpingCmd)

	a2 := New("/usr/local/sbin/arping", true, "secret")
	assert.Equal(t, "/usr/local/sbin/arping", a2.arpingCmd)
	assert.True(t, a2.sudo)
}

func TestIsBoundParsesIPAddrShowOutput(t *testing.T) {
	// Regression guard for the substring match used to scan `ip addr
	// show` output: must not match 10.0.0.50 when looking for 10.0.0.5.
	tests := []struct {
		name string
		line string
		vip  string
		want bool
	}{
		{"exact match", "inet 10.0.0.5/24 brd 10.0.0.255 scope global eth0", "10.0.0.5/24", true},
		{"no match, different address", "inet 10.0.0.6/24 brd 10.0.0.255 scope global eth0", "10.0.0.5/24", false},
		{"no false positive on longer prefix", "inet 10.0.0.50/24 brd 10.0.0.255 scope global eth0", "10.0.0.5/24", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesAddr(tt.line, tt.vip)
			assert.Equal(t, tt.want, got)
		})
	}
}
