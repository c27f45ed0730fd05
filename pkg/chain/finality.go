package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// Finality selects the head a reader may serve blocks up to.
type Finality string

const (
	FinalityFinalized Finality = "finalized"
	FinalitySafe      Finality = "safe"

	// FinalityLatest follows the latest block minus a configured lag
	FinalityLatest Finality = "latest"
)

func (f Finality) String() string {
	return string(f)
}

func (f Finality) IsValid() bool {
	switch f {
	case FinalityFinalized, FinalitySafe, FinalityLatest:
		return true
	default:
		return false
	}
}

// HeadTag returns the block tag whose header bounds the readable heights.
func (f Finality) HeadTag() rpc.BlockNumber {
	switch f {
	case FinalityFinalized:
		return rpc.FinalizedBlockNumber
	case FinalitySafe:
		return rpc.SafeBlockNumber
	default:
		return rpc.LatestBlockNumber
	}
}

// ReadableHead returns the highest readable height given the number of the HeadTag block.
// lag only applies to FinalityLatest.
func (f Finality) ReadableHead(tagHead, lag uint64) uint64 {
	if f != FinalityLatest {
		return tagHead
	}
	if lag > tagHead {
		return 0
	}

	return tagHead - lag
}

// ParseFinality parses a finality mode name.
func ParseFinality(s string) (Finality, error) {
	f := Finality(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid block finality: %s (must be one of: finalized, safe, latest)", s)
	}

	return f, nil
}
