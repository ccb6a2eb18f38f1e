package deployer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrTimeout is returned when a transaction is not included within the
	// profile's timeout_blocks, or when the node stops producing blocks.
	ErrTimeout = errors.New("dcip: transaction not mined in time")
	// ErrReverted is wrapped by every RevertError.
	ErrReverted = errors.New("dcip: contract creation reverted")
	// ErrNoAccounts is returned when a node has no unlocked account to send from.
	ErrNoAccounts = errors.New("dcip: node has no accounts")
)

// RevertError reports a contract creation rejected by the EVM, either while
// simulating or on chain.
type RevertError struct {
	Contract string
	// TxHash is zero when the revert was caught by the dry run.
	TxHash common.Hash
	Reason string
	DryRun bool
}

func (e *RevertError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no reason given"
	}
	if e.DryRun {
		return fmt.Sprintf("%s: dry run reverted: %s", e.Contract, reason)
	}
	return fmt.Sprintf("%s: transaction %s reverted: %s", e.Contract, e.TxHash.Hex(), reason)
}

func (e *RevertError) Unwrap() error {
	return ErrReverted
}

// revertReason extracts the Error(string) reason from an RPC error. ok is
// false when err does not look like an EVM revert.
func revertReason(err error) (reason string, ok bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, isStr := de.ErrorData().(string); isStr {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if r, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return r, true
				}
				return hexutil.Encode(data), true
			}
		}
	}

	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == 3 {
		return re.Error(), true
	}
	return "", false
}
