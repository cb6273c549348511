package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.openly.dev/pointy"

	"github.com/sand/storefront/backend/internal/entities"
)

const (
	SolanaName = "solana"

	// USDT SPL mint
	DefaultSolanaUSDTMint = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// Solana derives incoming SPL token transfers from the token balance changes of recent
// transactions touching the address.
type Solana struct {
	logger *slog.Logger
	rpcURL string
	client *rpc.Client
	mint   solana.PublicKey
}

func NewSolana(logger *slog.Logger, rpcURL, mint string) (*Solana, error) {
	if mint == "" {
		mint = DefaultSolanaUSDTMint
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint %q: %w", mint, err)
	}
	return &Solana{logger: logger, rpcURL: rpcURL, client: rpc.New(rpcURL), mint: mintKey}, nil
}

func (s *Solana) Name() string { return SolanaName + ":" + s.rpcURL }

func (s *Solana) Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed address %q: %w", SolanaName, address, err)
	}

	signatures, err := s.client.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
		Limit:      pointy.Int(limit),
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}

	transfers := make([]entities.LedgerTransfer, 0, len(signatures))
	skipped, failed := 0, 0
	for _, sig := range signatures {
		if sig.Err != nil {
			continue
		}
		transfer, ok, err := s.transfer(ctx, account, sig)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// следующий опрос повторит подпись
			s.logger.WarnContext(ctx, "Skipping unreadable transaction", "provider", SolanaName,
				"signature", sig.Signature.String(), "error", err)
			failed++
			continue
		}
		if !ok {
			skipped++
			continue
		}
		transfers = append(transfers, transfer)
	}
	if failed > 0 && failed == len(signatures) {
		return nil, fmt.Errorf("failed to read any of %d transactions", failed)
	}
	if skipped > 0 {
		s.logger.DebugContext(ctx, "Skipped transactions without incoming transfer", "provider", SolanaName, "count", skipped)
	}
	return transfers, nil
}

func (s *Solana) transfer(
	ctx context.Context,
	account solana.PublicKey,
	sig *rpc.TransactionSignature,
) (entities.LedgerTransfer, bool, error) {
	result, err := s.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: pointy.Uint64(0),
	})
	if err != nil {
		return entities.LedgerTransfer{}, false, fmt.Errorf("failed to get transaction %s: %w", sig.Signature, err)
	}
	if result == nil || result.Meta == nil || result.Transaction == nil {
		return entities.LedgerTransfer{}, false, nil
	}

	raw, decimals, ok := s.received(account, result.Meta)
	if !ok {
		return entities.LedgerTransfer{}, false, nil
	}
	amount, err := ScaleRaw(raw.String(), decimals)
	if err != nil {
		return entities.LedgerTransfer{}, false, nil
	}

	from := ""
	if data := result.Transaction.GetBinary(); len(data) > 0 {
		if tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data)); err == nil && len(tx.Message.AccountKeys) > 0 {
			// fee payer
			from = tx.Message.AccountKeys[0].String()
		}
	}

	transfer := entities.LedgerTransfer{
		ToAddress:   account.String(),
		FromAddress: from,
		Amount:      amount,
		TxID:        sig.Signature.String(),
		Contract:    s.mint.String(),
		Provider:    SolanaName,
	}
	switch {
	case result.BlockTime != nil:
		transfer.Timestamp = result.BlockTime.Time().UTC()
	case sig.BlockTime != nil:
		transfer.Timestamp = sig.BlockTime.Time().UTC()
	default:
		return entities.LedgerTransfer{}, false, nil
	}
	return transfer, true, nil
}

// received sums the increase of the mint balance owned by account across the transaction.
func (s *Solana) received(account solana.PublicKey, meta *rpc.TransactionMeta) (*big.Int, int, bool) {
	type balance struct {
		pre, post *big.Int
		decimals  int
	}
	balances := make(map[uint16]*balance)
	collect := func(list []rpc.TokenBalance, post bool) {
		for _, tb := range list {
			if tb.Mint != s.mint || tb.UiTokenAmount == nil || tb.Owner == nil || *tb.Owner != account {
				continue
			}
			v, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
			if !ok {
				continue
			}
			b, exists := balances[tb.AccountIndex]
			if !exists {
				b = &balance{pre: big.NewInt(0), post: big.NewInt(0)}
				balances[tb.AccountIndex] = b
			}
			b.decimals = int(tb.UiTokenAmount.Decimals)
			if post {
				b.post = v
			} else {
				b.pre = v
			}
		}
	}
	collect(meta.PreTokenBalances, false)
	collect(meta.PostTokenBalances, true)

	total := big.NewInt(0)
	decimals := 0
	for _, b := range balances {
		total.Add(total, new(big.Int).Sub(b.post, b.pre))
		decimals = b.decimals
	}
	if total.Sign() <= 0 {
		return nil, 0, false
	}
	return total, decimals, true
}
