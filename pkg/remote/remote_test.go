package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCommandCapturesOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdout, _, ok, err := LocalCommand(ctx, "echo hello")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello\n", stdout)
}

func TestLocalCommandReportsNonZeroExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, ok, err := LocalCommand(ctx, "exit 3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpandTemplateSubstitutesAllPlaceholders(t *testing.T) {
	ev := TemplateVars{
		NodeID: 2, NodeName: "node2", EventType: "standby_register",
		Details: "registered as standby", Successful: true,
		Timestamp: "2026-08-06T00:00:00Z", Conninfo: "host=node2 dbname=repmgr", PrimaryNodeID: 1,
	}
	got := ExpandTemplate("%n %a %e %d %s %t %c %p %%", ev)
	assert.Equal(t, `2 node2 standby_register registered as standby 1 2026-08-06T00:00:00Z host=node2 dbname=repmgr 1 %`, got)
}

func TestExpandTemplateEscapesQuotesInDetails(t *testing.T) {
	ev := TemplateVars{Details: `failed: "timeout"`}
	got := ExpandTemplate(`%d`, ev)
	assert.Equal(t, `failed: \"timeout\"`, got)
}

func TestExpandTemplateLeavesUnknownSequenceLiteral(t *testing.T) {
	got := ExpandTemplate("%z", TemplateVars{})
	assert.Equal(t, "%z", got)
}
