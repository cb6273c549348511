package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sand/storefront/backend/internal/entities"
)

const (
	TronGridName             = "trongrid"
	DefaultTronGridKeyHeader = "TRON-PRO-API-KEY"
)

type tronGridResponse struct {
	Success bool             `json:"success"`
	Data    []tronGridRecord `json:"data"`
}

type tronGridRecord struct {
	TransactionID  string `json:"transaction_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          any    `json:"value"`
	BlockTimestamp int64  `json:"block_timestamp"`
	TokenInfo      struct {
		Address  string `json:"address"`
		Decimals any    `json:"decimals"`
	} `json:"token_info"`
}

// TronGrid reads TRC-20 transfers of an account from the keyed TronGrid API.
type TronGrid struct {
	logger    *slog.Logger
	client    *http.Client
	baseURL   string
	keyHeader string
	contract  string
}

func NewTronGrid(logger *slog.Logger, client *http.Client, baseURL, keyHeader, contract string) *TronGrid {
	if keyHeader == "" {
		keyHeader = DefaultTronGridKeyHeader
	}
	return &TronGrid{
		logger:    logger,
		client:    client,
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyHeader: keyHeader,
		contract:  contract,
	}
}

func (g *TronGrid) Name() string { return TronGridName }

func (g *TronGrid) FetchWithKey(ctx context.Context, key, address string, limit int) ([]entities.LedgerTransfer, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("only_to", "true")
	if g.contract != "" {
		query.Set("contract_address", g.contract)
	}
	header := http.Header{}
	if key != "" {
		header.Set(g.keyHeader, key)
	}

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20", g.baseURL, url.PathEscape(address))
	var resp tronGridResponse
	if err := getJSON(ctx, g.client, TronGridName, endpoint, query, header, &resp); err != nil {
		return nil, err
	}

	transfers := make([]entities.LedgerTransfer, 0, len(resp.Data))
	skipped := 0
	for _, rec := range resp.Data {
		if !strings.EqualFold(rec.To, address) {
			continue
		}
		if rec.TransactionID == "" {
			skipped++
			continue
		}
		amount, err := ScaleRaw(RawString(rec.Value), ParseDecimals(rec.TokenInfo.Decimals))
		if err != nil {
			skipped++
			continue
		}
		transfers = append(transfers, entities.LedgerTransfer{
			ToAddress:   rec.To,
			FromAddress: rec.From,
			Amount:      amount,
			Timestamp:   UnixTimestamp(rec.BlockTimestamp),
			TxID:        rec.TransactionID,
			Contract:    rec.TokenInfo.Address,
			Provider:    TronGridName,
		})
	}
	if skipped > 0 {
		g.logger.DebugContext(ctx, "Skipped malformed transfer records", "provider", TronGridName, "count", skipped)
	}
	return transfers, nil
}
