package failover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankOrdersByReceiveLSNDescending(t *testing.T) {
	candidates := []Candidate{
		{NodeID: 1, ReceiveLSN: 100, Priority: 1},
		{NodeID: 2, ReceiveLSN: 300, Priority: 1},
		{NodeID: 3, ReceiveLSN: 200, Priority: 1},
	}
	ranked := Rank(candidates, "")
	assert.Equal(t, []int32{2, 3, 1}, ids(ranked))
}

func TestRankDropsZeroPriorityCandidates(t *testing.T) {
	candidates := []Candidate{
		{NodeID: 1, ReceiveLSN: 500, Priority: 0},
		{NodeID: 2, ReceiveLSN: 100, Priority: 1},
	}
	ranked := Rank(candidates, "")
	assert.Equal(t, []int32{2}, ids(ranked))
}

func TestRankBreaksLSNTiesOnPriorityThenLocationThenNodeID(t *testing.T) {
	candidates := []Candidate{
		{NodeID: 3, ReceiveLSN: 100, Priority: 5, Location: "dc1"},
		{NodeID: 2, ReceiveLSN: 100, Priority: 5, Location: "dc2"},
		{NodeID: 1, ReceiveLSN: 100, Priority: 5, Location: "dc1"},
	}
	ranked := Rank(candidates, "dc1")
	assert.Equal(t, []int32{1, 3, 2}, ids(ranked))
}

func TestRankNodeIDTieBreakIsStableUnderInputOrder(t *testing.T) {
	a := []Candidate{
		{NodeID: 5, ReceiveLSN: 10, Priority: 1},
		{NodeID: 2, ReceiveLSN: 10, Priority: 1},
	}
	b := []Candidate{
		{NodeID: 2, ReceiveLSN: 10, Priority: 1},
		{NodeID: 5, ReceiveLSN: 10, Priority: 1},
	}
	assert.Equal(t, ids(Rank(a, "")), ids(Rank(b, "")))
	assert.Equal(t, []int32{2, 5}, ids(Rank(a, "")))
}

func ids(candidates []Candidate) []int32 {
	out := make([]int32, len(candidates))
	for i, c := range candidates {
		out[i] = c.NodeID
	}
	return out
}
