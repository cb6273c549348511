package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sand/storefront/backend/internal/entities"
)

const (
	EVMName = "evm"

	// USDT BEP-20
	DefaultBSCUSDTContract = "0x55d398326f99059fF775485246999027B3197955"
	defaultBSCUSDTDecimals = 18
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVM reads ERC-20 Transfer logs to an address over JSON-RPC.
type EVM struct {
	logger   *slog.Logger
	rpcURL   string
	contract common.Address
	decimals int
	lookback uint64

	mu     sync.Mutex
	client *ethclient.Client
}

func NewEVM(logger *slog.Logger, rpcURL, contract string, decimals int, lookback uint64) *EVM {
	if contract == "" || !common.IsHexAddress(contract) {
		contract = DefaultBSCUSDTContract
	}
	if decimals <= 0 {
		decimals = defaultBSCUSDTDecimals
	}
	return &EVM{
		logger:   logger,
		rpcURL:   rpcURL,
		contract: common.HexToAddress(contract),
		decimals: decimals,
		lookback: lookback,
	}
}

func (e *EVM) Name() string { return EVMName + ":" + e.rpcURL }

func (e *EVM) dial(ctx context.Context) (*ethclient.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}
	client, err := ethclient.DialContext(ctx, e.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM client: %w", err)
	}
	e.client = client
	return client, nil
}

func (e *EVM) Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%s: malformed address %q", EVMName, address)
	}
	client, err := e.dial(ctx)
	if err != nil {
		return nil, err
	}

	latest, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block number: %w", err)
	}
	from := uint64(0)
	if latest > e.lookback {
		from = latest - e.lookback
	}

	recipient := common.HexToAddress(address)
	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{e.contract},
		Topics:    [][]common.Hash{{transferTopic}, nil, {common.BytesToHash(recipient.Bytes())}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter transfer logs: %w", err)
	}

	blockTimes := make(map[uint64]uint64)
	transfers := make([]entities.LedgerTransfer, 0, min(len(logs), limit))
	// logs come oldest first
	for i := len(logs) - 1; i >= 0 && len(transfers) < limit; i-- {
		transfer, ok := e.decode(logs[i])
		if !ok {
			continue
		}

		ts, ok := blockTimes[logs[i].BlockNumber]
		if !ok {
			header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(logs[i].BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("failed to get block %d header: %w", logs[i].BlockNumber, err)
			}
			ts = header.Time
			blockTimes[logs[i].BlockNumber] = ts
		}
		transfer.Timestamp = UnixTimestamp(int64(ts))
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// TransferID names one Transfer log; a transaction may emit several.
func TransferID(txHash string, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash, logIndex)
}

// decode extracts from, to and value of a Transfer log; topics carry 32-byte padded addresses.
func (e *EVM) decode(log types.Log) (entities.LedgerTransfer, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != transferTopic || len(log.Data) != 32 || log.Removed {
		return entities.LedgerTransfer{}, false
	}
	value := new(big.Int).SetBytes(log.Data)
	amount, err := ScaleRaw(value.String(), e.decimals)
	if err != nil {
		return entities.LedgerTransfer{}, false
	}
	return entities.LedgerTransfer{
		FromAddress: common.BytesToAddress(log.Topics[1].Bytes()[12:]).Hex(),
		ToAddress:   common.BytesToAddress(log.Topics[2].Bytes()[12:]).Hex(),
		Amount:      amount,
		TxID:        TransferID(log.TxHash.Hex(), log.Index),
		Contract:    log.Address.Hex(),
		Provider:    EVMName,
	}, true
}

func (e *EVM) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
}
