// Package record defines the flat Deposit row persisted to the event log.
package record

import (
	"fmt"
	"time"

	"github.com/devblac/deposit-listener/internal/source/evm"
	"github.com/ethereum/go-ethereum/common"
)

// DateLayout is the capture timestamp format, always UTC.
const DateLayout = "2006-01-02 15:04:05"

// Columns is the fixed persisted schema, in order.
var Columns = []string{"chain", "token", "recipient", "amount", "transactionHash", "address", "date"}

// Record is one normalized Deposit event.
type Record struct {
	Chain           string `json:"chain"`
	Token           string `json:"token"`
	Recipient       string `json:"recipient"`
	Amount          string `json:"amount"`
	TransactionHash string `json:"transactionHash"`
	Address         string `json:"address"`
	Date            string `json:"date"`

	// Provenance kept in memory only; not part of the persisted schema.
	BlockNumber uint64 `json:"-"`
	LogIndex    uint   `json:"-"`
}

// Row returns the record fields in Columns order.
func (r Record) Row() []string {
	return []string{r.Chain, r.Token, r.Recipient, r.Amount, r.TransactionHash, r.Address, r.Date}
}

// FromRow parses a row written in Columns order.
func FromRow(row []string) (Record, error) {
	if len(row) != len(Columns) {
		return Record{}, fmt.Errorf("expected %d fields, got %d", len(Columns), len(row))
	}
	return Record{
		Chain:           row[0],
		Token:           row[1],
		Recipient:       row[2],
		Amount:          row[3],
		TransactionHash: row[4],
		Address:         row[5],
		Date:            row[6],
	}, nil
}

// Key identifies the on-chain event behind a record.
func (r Record) Key() string {
	return fmt.Sprintf("%s:%s:%d", r.Chain, r.TransactionHash, r.LogIndex)
}

// Normalize maps decoded deposits to records stamped with the capture time.
// The amount keeps full precision as a decimal string.
func Normalize(chain string, contract common.Address, deposits []evm.Deposit, now time.Time) []Record {
	date := now.UTC().Format(DateLayout)
	out := make([]Record, 0, len(deposits))
	for _, d := range deposits {
		amount := "0"
		if d.Amount != nil {
			amount = d.Amount.String()
		}
		out = append(out, Record{
			Chain:           chain,
			Token:           d.Token.Hex(),
			Recipient:       d.Recipient.Hex(),
			Amount:          amount,
			TransactionHash: d.TxHash.Hex(),
			Address:         contract.Hex(),
			Date:            date,
			BlockNumber:     d.BlockNumber,
			LogIndex:        d.LogIndex,
		})
	}
	return out
}
