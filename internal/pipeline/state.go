// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

// State is the position of a cafe in the processing state machine:
// Discovered, Enriching, Geocoding, Slugging, Validated, then Exported.
// Rejected is reachable from every non-terminal state.
type State int

const (
	Discovered State = iota
	Enriching
	Geocoding
	Slugging
	Validated
	Exported
	Rejected
)

var stateNames = [...]string{
	Discovered: "discovered",
	Enriching:  "enriching",
	Geocoding:  "geocoding",
	Slugging:   "slugging",
	Validated:  "validating",
	Exported:   "exported",
	Rejected:   "rejected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
