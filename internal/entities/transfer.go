package entities

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransfer is a token transfer observed on chain, normalized across providers.
// Amount always carries 4 decimal places.
type LedgerTransfer struct {
	ToAddress   string          `json:"to_address"`
	FromAddress string          `json:"from_address"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   time.Time       `json:"timestamp"`
	TxID        string          `json:"tx_id"`
	Contract    string          `json:"contract"`
	Provider    string          `json:"provider"`
}

// PaysTo reports whether the transfer was sent to address, ignoring case.
func (t LedgerTransfer) PaysTo(address string) bool {
	return strings.EqualFold(strings.TrimSpace(t.ToAddress), strings.TrimSpace(address))
}
