package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnsupportedChain is returned when a chain id is not configured.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrConnection signals the endpoint could not be reached or failed the handshake.
	ErrConnection = errors.New("connection error")
	// ErrInvalidRange is returned when the resolved end block precedes the start block.
	ErrInvalidRange = errors.New("invalid block range")
	// ErrFetch wraps a failed log query for one sub-range.
	ErrFetch = errors.New("fetch failure")
)

// Latest is the symbolic block reference for the current chain head.
const Latest = "latest"

// BlockRef is either a concrete block number or the symbolic "latest".
type BlockRef struct {
	Number uint64
	latest bool
}

// LatestBlock returns a reference to the chain head.
func LatestBlock() BlockRef { return BlockRef{latest: true} }

// BlockNumber returns a reference to a concrete block.
func BlockNumber(n uint64) BlockRef { return BlockRef{Number: n} }

// IsLatest reports whether the reference is symbolic.
func (b BlockRef) IsLatest() bool { return b.latest }

func (b BlockRef) String() string {
	if b.latest {
		return Latest
	}
	return strconv.FormatUint(b.Number, 10)
}

// ParseBlockRef accepts "latest" (case-insensitive) or a non-negative decimal block number.
func ParseBlockRef(s string) (BlockRef, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, Latest) {
		return LatestBlock(), nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return BlockRef{}, fmt.Errorf("parse block %q: %w", s, err)
	}
	return BlockNumber(n), nil
}

// ScanRequest describes a single scan invocation.
type ScanRequest struct {
	Chain    string
	Start    BlockRef
	End      BlockRef
	Contract common.Address
}

// SubRange is one inclusive block span sent as a single log query.
type SubRange struct {
	From uint64
	To   uint64
}

func (r SubRange) String() string {
	if r.From == r.To {
		return strconv.FormatUint(r.From, 10)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Deposit is a decoded Deposit(address,address,uint256) log.
type Deposit struct {
	Token       common.Address
	Recipient   common.Address
	Amount      *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}
