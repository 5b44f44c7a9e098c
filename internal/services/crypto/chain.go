package crypto

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainClient is the subset of the JSON-RPC API used to verify transfers.
// *ethclient.Client satisfies it.
type ChainClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dial connects to an EVM JSON-RPC endpoint
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain at %s: %w", rpcURL, err)
	}
	return client, nil
}

// Transfer is a mined value transfer as seen on chain
type Transfer struct {
	Hash          string
	From          common.Address
	To            common.Address
	Value         *big.Int
	BlockNumber   uint64
	Confirmations uint64
	Success       bool
	Pending       bool
}

// FetchTransfer loads a transaction and its receipt. Pending transactions are returned with
// Pending set and no receipt data.
func FetchTransfer(ctx context.Context, client ChainClient, txHash string) (*Transfer, error) {
	hash := common.HexToHash(txHash)

	tx, isPending, err := client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	transfer := &Transfer{Hash: hash.Hex(), Value: tx.Value(), Pending: isPending}
	if to := tx.To(); to != nil {
		transfer.To = *to
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		transfer.From = from
	}
	if isPending {
		return transfer, nil
	}

	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	transfer.Success = receipt.Status == types.ReceiptStatusSuccessful
	transfer.BlockNumber = receipt.BlockNumber.Uint64()

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}
	transfer.Confirmations = confirmations(head, transfer.BlockNumber)
	return transfer, nil
}

func confirmations(head, block uint64) uint64 {
	if head < block {
		return 0
	}
	return head - block + 1
}
