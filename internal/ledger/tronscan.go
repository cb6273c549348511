package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
)

const TronScanName = "tronscan"

type tronScanResponse struct {
	TokenTransfers []tronScanRecord `json:"token_transfers"`
	Data           []tronScanRecord `json:"data"`
}

type tronScanRecord struct {
	TransactionID string  `json:"transaction_id"`
	Hash          string  `json:"hash"`
	FromAddress   string  `json:"from_address"`
	ToAddress     string  `json:"to_address"`
	Quant         any     `json:"quant"`
	AmountStr     *string `json:"amount_str"`
	BlockTS       int64   `json:"block_ts"`
	ContractAddr  string  `json:"contract_address"`
	TokenInfo     struct {
		TokenID      string `json:"tokenId"`
		TokenDecimal any    `json:"tokenDecimal"`
	} `json:"tokenInfo"`
}

func (r tronScanRecord) txID() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.Hash
}

func (r tronScanRecord) amount() (decimal.Decimal, error) {
	if r.AmountStr != nil {
		return ParseScaled(*r.AmountStr)
	}
	return ScaleRaw(RawString(r.Quant), ParseDecimals(r.TokenInfo.TokenDecimal))
}

// TronScan is a public, unauthenticated TRC-20 transfer index.
type TronScan struct {
	logger   *slog.Logger
	client   *http.Client
	endpoint string
	contract string
}

func NewTronScan(logger *slog.Logger, client *http.Client, endpoint, contract string) *TronScan {
	return &TronScan{logger: logger, client: client, endpoint: endpoint, contract: contract}
}

func (s *TronScan) Name() string { return TronScanName + ":" + s.endpoint }

func (s *TronScan) Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	query := url.Values{}
	query.Set("toAddress", address)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sort", "-timestamp")
	if s.contract != "" {
		query.Set("contract_address", s.contract)
	}

	var resp tronScanResponse
	if err := getJSON(ctx, s.client, TronScanName, s.endpoint, query, nil, &resp); err != nil {
		return nil, err
	}

	records := resp.TokenTransfers
	if len(records) == 0 {
		records = resp.Data
	}

	transfers := make([]entities.LedgerTransfer, 0, len(records))
	skipped := 0
	for _, rec := range records {
		amount, err := rec.amount()
		if err != nil || rec.txID() == "" || rec.ToAddress == "" {
			skipped++
			continue
		}
		contract := rec.ContractAddr
		if contract == "" {
			contract = rec.TokenInfo.TokenID
		}
		transfers = append(transfers, entities.LedgerTransfer{
			ToAddress:   rec.ToAddress,
			FromAddress: rec.FromAddress,
			Amount:      amount,
			Timestamp:   UnixTimestamp(rec.BlockTS),
			TxID:        rec.txID(),
			Contract:    contract,
			Provider:    TronScanName,
		})
	}
	if skipped > 0 {
		s.logger.DebugContext(ctx, "Skipped malformed transfer records", "provider", TronScanName, "count", skipped)
	}
	return transfers, nil
}
