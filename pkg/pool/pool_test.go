package pool

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsString(t *testing.T) {
	p := Params{}.Set("host", "10.0.0.1").Set("dbname", "repmgr")
	s := p.String()
	assert.Equal(t, "host='10.0.0.1' dbname='repmgr'", s)
}

func TestParamsStringEscapesQuotes(t *testing.T) {
	p := Params{}.Set("password", "it's-a-secret")
	s := p.String()
	assert.True(t, strings.Contains(s, `it\'s-a-secret`))
}

func TestParamsStringPreservesInsertionOrder(t *testing.T) {
	p := Params{}.Set("c", "3").Set("a", "1").Set("b", "2")
	assert.Equal(t, "c='3' a='1' b='2'", p.String())
}

func TestParamsOverrideReplacesInPlace(t *testing.T) {
	p := Params{}.Set("host", "10.0.0.1").Set("user", "repmgr").Set("dbname", "repmgr")
	p = p.Override("user", "replicator")
	assert.Equal(t, "host='10.0.0.1' user='replicator' dbname='repmgr'", p.String())
}

func TestParamsOverrideAppendsUnknownKey(t *testing.T) {
	p := Params{}.Set("host", "10.0.0.1")
	p = p.Override("sslmode", "require")
	assert.Equal(t, "host='10.0.0.1' sslmode='require'", p.String())
}

func TestParseParamsRoundTripsQuotedAndBareValues(t *testing.T) {
	p, err := ParseParams(`host=10.0.0.1 port=5432 user=repmgr password='it\'s a secret' dbname=repmgr sslmode=require`)
	assert.NoError(t, err)
	assert.Equal(t, Params{
		{Key: "host", Value: "10.0.0.1"},
		{Key: "port", Value: "5432"},
		{Key: "user", Value: "repmgr"},
		{Key: "password", Value: "it's a secret"},
		{Key: "dbname", Value: "repmgr"},
		{Key: "sslmode", Value: "require"},
	}, p)
}

func TestParseParamsRejectsMissingEquals(t *testing.T) {
	_, err := ParseParams("host 10.0.0.1")
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusBad, "bad"},
		{StatusError, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestNewDefaultsAppName(t *testing.T) {
	p := New("")
	assert.Equal(t, DefaultAppName, p.appName)

	p2 := New("repmgr-cli")
	assert.Equal(t, "repmgr-cli", p2.appName)
}
