package evm

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DepositEventName is the ABI name of the scanned event.
const DepositEventName = "Deposit"

//go:embed deposit_abi.json
var depositABIJSON []byte

// LoadDepositEvent returns the Deposit event definition.
// An empty path selects the embedded ABI; otherwise the file must contain a Deposit event.
func LoadDepositEvent(path string) (*abi.Event, error) {
	data := depositABIJSON
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read abi %s: %w", path, err)
		}
		data = raw
	}
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	ev, ok := FindEvent(&a, DepositEventName)
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", DepositEventName)
	}
	if err := checkDepositInputs(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// FindEvent looks up an event by name.
func FindEvent(a *abi.ABI, eventName string) (*abi.Event, bool) {
	if ev, ok := a.Events[eventName]; ok {
		return &ev, true
	}
	return nil, false
}

func checkDepositInputs(ev *abi.Event) error {
	want := []struct {
		name    string
		typ     byte
		indexed bool
	}{
		{"token", abi.AddressTy, true},
		{"recipient", abi.AddressTy, true},
		{"amount", abi.UintTy, false},
	}
	if len(ev.Inputs) != len(want) {
		return fmt.Errorf("%s: expected %d inputs, got %d", ev.Sig, len(want), len(ev.Inputs))
	}
	for i, w := range want {
		in := ev.Inputs[i]
		if in.Name != w.name || in.Type.T != w.typ || in.Indexed != w.indexed {
			return fmt.Errorf("%s: input %d must be %s (indexed=%v)", ev.Sig, i, w.name, w.indexed)
		}
	}
	return nil
}
