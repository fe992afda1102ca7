package failover

import (
	"sort"

	"github.com/cuemby/repmgrd/pkg/localfile"
)

// Candidate is one node's standing in an election: how far it has
// replayed, its configured priority, and the location string used for
// the tie-break preference.
type Candidate struct {
	NodeID     int32
	ReceiveLSN localfile.LSN
	Priority   int32
	Location   string
	Conninfo   string

	// Weight is how much this node's endorsement counts toward the
	// quorum check in RunElection's step 4. Standbys vote at full
	// weight; a witness is consulted but counts for less, per §4.6's
	// tie-breaking rule that a witness's vote carries lower weight.
	Weight float64
}

// WitnessVoteWeight is the fraction of a full endorsement a witness's
// vote counts for in RunElection's quorum check.
const WitnessVoteWeight = 0.5

// Rank orders candidates by (receive_lsn DESC, priority DESC, location
// preference, node_id ASC). Priority-0 candidates are dropped, they are
// never eligible. preferredLocation is the last-known primary's
// location; a matching candidate wins a tie over one that doesn't.
// The result is stable: candidates already equal under every key keep
// their input relative order except for the node_id tie-break.
func Rank(candidates []Candidate, preferredLocation string) []Candidate {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Priority > 0 {
			eligible = append(eligible, c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.ReceiveLSN != b.ReceiveLSN {
			return a.ReceiveLSN > b.ReceiveLSN
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		aLoc := a.Location == preferredLocation
		bLoc := b.Location == preferredLocation
		if aLoc != bLoc {
			return aLoc
		}
		return a.NodeID < b.NodeID
	})
	return eligible
}
