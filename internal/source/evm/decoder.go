package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Decoder filters and decodes Deposit logs emitted by one contract.
type Decoder struct {
	address common.Address
	event   *abi.Event
}

// NewDecoder builds a decoder for the contract using the given event definition.
func NewDecoder(contract common.Address, event *abi.Event) (*Decoder, error) {
	if event == nil {
		return nil, fmt.Errorf("deposit event definition required")
	}
	return &Decoder{address: contract, event: event}, nil
}

// Topic returns the event signature hash used as topic0.
func (d *Decoder) Topic() common.Hash { return d.event.ID }

// Address returns the contract address logs are matched against.
func (d *Decoder) Address() common.Address { return d.address }

// Decode returns the Deposit carried by the log. ok is false when the log is
// from another contract or another event.
func (d *Decoder) Decode(log types.Log) (*Deposit, bool, error) {
	if log.Address != d.address {
		return nil, false, nil
	}
	if len(log.Topics) == 0 || log.Topics[0] != d.event.ID {
		return nil, false, nil
	}

	indexed, nonIndexed := splitIndexed(d.event.Inputs)
	args := map[string]any{}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, false, fmt.Errorf("parse topics tx %s: %w", log.TxHash.Hex(), err)
	}
	if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
		return nil, false, fmt.Errorf("unpack data tx %s: %w", log.TxHash.Hex(), err)
	}

	token, ok := args["token"].(common.Address)
	if !ok {
		return nil, false, fmt.Errorf("tx %s: token is not an address", log.TxHash.Hex())
	}
	recipient, ok := args["recipient"].(common.Address)
	if !ok {
		return nil, false, fmt.Errorf("tx %s: recipient is not an address", log.TxHash.Hex())
	}
	amount, ok := args["amount"].(*big.Int)
	if !ok {
		return nil, false, fmt.Errorf("tx %s: amount is not uint256", log.TxHash.Hex())
	}

	return &Deposit{
		Token:       token,
		Recipient:   recipient,
		Amount:      amount,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, true, nil
}

// DecodeAll decodes every matching log, preserving input order.
func (d *Decoder) DecodeAll(logs []types.Log) ([]Deposit, error) {
	out := make([]Deposit, 0, len(logs))
	for _, lg := range logs {
		dep, ok, err := d.Decode(lg)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *dep)
		}
	}
	return out, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
