package crypto

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database/dbtest"
	"github.com/santaspot/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const receivingAddress = "0x1111111111111111111111111111111111111111"

var chainID = big.NewInt(137)

type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	txs      map[common.Hash]*types.Transaction
	pending  map[common.Hash]bool
	receipts map[common.Hash]*types.Receipt
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head:     head,
		txs:      map[common.Hash]*types.Transaction{},
		pending:  map[common.Hash]bool{},
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (c *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, c.pending[hash], nil
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) setHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
}

// send signs a transfer and mines it at block with the given receipt status
func (c *fakeChain) send(t *testing.T, to string, wei *big.Int, block uint64, status uint64) (string, common.Address) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	recipient := common.HexToAddress(to)
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		To:       &recipient,
		Value:    wei,
		Gas:      21000,
		GasPrice: big.NewInt(1),
	}), types.NewEIP155Signer(chainID), key)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[tx.Hash()] = tx
	if block == 0 {
		c.pending[tx.Hash()] = true
	} else {
		c.receipts[tx.Hash()] = &types.Receipt{Status: status, BlockNumber: new(big.Int).SetUint64(block)}
	}
	return tx.Hash().Hex(), ethcrypto.PubkeyToAddress(key.PublicKey)
}

func newTestService(chain ChainClient) (*DonationService, *dbtest.MemStore) {
	store := dbtest.NewMemStore()
	return NewDonationService(store, chain, config.ChainConfig{
		Network:          "polygon",
		Currency:         "MATIC",
		ReceivingAddress: receivingAddress,
		MinConfirmations: 12,
	}, zap.NewNop()), store
}

func oneCoin() *big.Int { return big.NewInt(1e18) }

func TestRecordDonationConfirmed(t *testing.T) {
	chain := newFakeChain(120)
	svc, _ := newTestService(chain)
	hash, from := chain.send(t, receivingAddress, oneCoin(), 100, types.ReceiptStatusSuccessful)

	donation, err := svc.RecordDonation(context.Background(), uuid.New(), "Polygon", hash)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusConfirmed, donation.Status)
	assert.EqualValues(t, 21, donation.Confirmations)
	assert.True(t, donation.Amount.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, from.Hex(), donation.FromAddress)
	assert.Equal(t, "MATIC", donation.Currency)

	_, err = svc.RecordDonation(context.Background(), uuid.New(), "polygon", hash)
	assert.ErrorIs(t, err, ErrDuplicateDonation)
}

func TestRecordDonationPendingThenConfirmed(t *testing.T) {
	chain := newFakeChain(105)
	svc, store := newTestService(chain)
	hash, _ := chain.send(t, receivingAddress, big.NewInt(5e17), 100, types.ReceiptStatusSuccessful)
	ctx := context.Background()

	donation, err := svc.RecordDonation(ctx, uuid.New(), "polygon", hash)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusPending, donation.Status)
	assert.EqualValues(t, 6, donation.Confirmations)
	assert.True(t, donation.Amount.Equal(decimal.RequireFromString("0.5")))

	confirmed, err := svc.RecheckPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, confirmed)

	chain.setHead(111)
	confirmed, err = svc.RecheckPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)

	pending, err := store.ListPendingDonations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecordDonationRejections(t *testing.T) {
	chain := newFakeChain(200)
	svc, _ := newTestService(chain)
	ctx := context.Background()
	user := uuid.New()

	wrong, _ := chain.send(t, "0x2222222222222222222222222222222222222222", oneCoin(), 100, types.ReceiptStatusSuccessful)
	reverted, _ := chain.send(t, receivingAddress, oneCoin(), 100, types.ReceiptStatusFailed)
	empty, _ := chain.send(t, receivingAddress, big.NewInt(0), 100, types.ReceiptStatusSuccessful)
	unmined, _ := chain.send(t, receivingAddress, oneCoin(), 0, 0)

	cases := []struct {
		name    string
		network string
		hash    string
		want    error
	}{
		{"wrong recipient", "polygon", wrong, ErrWrongRecipient},
		{"reverted", "polygon", reverted, ErrTransactionFailed},
		{"zero value", "polygon", empty, ErrInvalidAmount},
		{"pending", "polygon", unmined, ErrTransactionPending},
		{"unknown", "polygon", common.HexToHash("0xabc").Hex(), ErrTransactionNotFound},
		{"bad hash", "polygon", "0x1234", ErrInvalidTxHash},
		{"other network", "ethereum", wrong, ErrUnsupportedNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordDonation(ctx, user, tc.network, tc.hash)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRecordDonationWithoutChain(t *testing.T) {
	svc, _ := newTestService(nil)
	_, err := svc.RecordDonation(context.Background(), uuid.New(), "polygon", common.HexToHash("0x1").Hex())
	assert.ErrorIs(t, err, ErrDonationsUnavailable)
}

func TestConfirmations(t *testing.T) {
	assert.EqualValues(t, 1, confirmations(100, 100))
	assert.EqualValues(t, 11, confirmations(110, 100))
	assert.EqualValues(t, 0, confirmations(99, 100))
}
