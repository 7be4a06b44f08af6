package submit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Mode is a way ratings reach the contract.
type Mode uint8

const (
	// ModeRelayed makes identities sign typed rating messages which are sent
	// to the contract by the relayer.
	ModeRelayed Mode = iota
	// ModeDirect makes identities send ratings themselves.
	ModeDirect
)

// String implements [fmt.Stringer].
func (m Mode) String() string {
	switch m {
	case ModeRelayed:
		return "relayed"
	case ModeDirect:
		return "direct"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMode parses mode from its string representation.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "relayed", "relay":
		return ModeRelayed, nil
	case "direct":
		return ModeDirect, nil
	default:
		return 0, fmt.Errorf("unknown submission mode '%s'", s)
	}
}

// State is a stage of the single submission.
type State uint8

// Submission states in order. Succeeded and Failed are terminal.
const (
	Idle State = iota
	FetchingNonce
	BuildingMessage
	AwaitingSignature
	Submitting
	Succeeded
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	FetchingNonce:     "fetching nonce",
	BuildingMessage:   "building message",
	AwaitingSignature: "awaiting signature",
	Submitting:        "submitting",
	Succeeded:         "succeeded",
	Failed:            "failed",
}

// String implements [fmt.Stringer].
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", s)
}

// Terminal checks whether s is a final state.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Transition describes a change of submission state.
type Transition struct {
	Attempt  uuid.UUID
	Identity util.Uint160
	Subject  uint64
	From, To State
	// Err is set for transitions to Failed.
	Err error
}

// Observer is notified about every transition. It is called synchronously
// and must not block.
type Observer func(Transition)
