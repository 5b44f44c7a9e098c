// Package crypto verifies on-chain donations to the pot's receiving address.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/santaspot/backend/internal/config"
	"github.com/santaspot/backend/internal/database"
	"github.com/santaspot/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// weiExponent converts wei to whole coins
const weiExponent = -18

var (
	ErrInvalidTxHash        = errors.New("invalid transaction hash")
	ErrUnsupportedNetwork   = errors.New("unsupported network")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrTransactionPending   = errors.New("transaction is not mined yet")
	ErrTransactionFailed    = errors.New("transaction failed on chain")
	ErrWrongRecipient       = errors.New("transaction was not sent to the donation address")
	ErrInvalidAmount        = errors.New("transaction carries no value")
	ErrDuplicateDonation    = errors.New("donation already recorded")
	ErrDonationsUnavailable = errors.New("donations are not configured")
)

// Store is the donation persistence
type Store interface {
	CreateDonation(ctx context.Context, donation *models.Donation) error
	ListPendingDonations(ctx context.Context, limit int) ([]models.Donation, error)
	UpdateDonationStatus(ctx context.Context, id uuid.UUID, status models.DonationStatus, confirmations uint64) error
}

// DonationService records and confirms crypto donations
type DonationService struct {
	store Store
	chain ChainClient
	cfg   config.ChainConfig
	log   *zap.Logger
}

// NewDonationService creates a donation service over the given chain client
func NewDonationService(store Store, chain ChainClient, cfg config.ChainConfig, log *zap.Logger) *DonationService {
	return &DonationService{store: store, chain: chain, cfg: cfg, log: log}
}

// RecordDonation verifies txHash on chain and stores it for userID. Transfers below the
// confirmation threshold are stored as pending and confirmed later by RecheckPending.
func (s *DonationService) RecordDonation(ctx context.Context, userID uuid.UUID, network, txHash string) (*models.Donation, error) {
	if s.chain == nil || !common.IsHexAddress(s.cfg.ReceivingAddress) {
		return nil, ErrDonationsUnavailable
	}
	if !strings.EqualFold(strings.TrimSpace(network), s.cfg.Network) {
		return nil, ErrUnsupportedNetwork
	}
	if raw, err := hexutil.Decode(txHash); err != nil || len(raw) != common.HashLength {
		return nil, ErrInvalidTxHash
	}

	transfer, err := FetchTransfer(ctx, s.chain, txHash)
	if err != nil {
		return nil, err
	}
	switch {
	case transfer.Pending:
		return nil, ErrTransactionPending
	case !transfer.Success:
		return nil, ErrTransactionFailed
	case transfer.To != common.HexToAddress(s.cfg.ReceivingAddress):
		return nil, ErrWrongRecipient
	case transfer.Value == nil || transfer.Value.Sign() <= 0:
		return nil, ErrInvalidAmount
	}

	donation := &models.Donation{
		UserID:        userID,
		TxHash:        transfer.Hash,
		Network:       s.cfg.Network,
		Currency:      s.cfg.Currency,
		Amount:        decimal.NewFromBigInt(transfer.Value, weiExponent),
		FromAddress:   transfer.From.Hex(),
		BlockNumber:   transfer.BlockNumber,
		Confirmations: transfer.Confirmations,
		Status:        s.statusFor(transfer.Confirmations),
	}
	err = s.store.CreateDonation(ctx, donation)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, ErrDuplicateDonation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record donation: %w", err)
	}

	s.log.Info("donation recorded",
		zap.String("user_id", userID.String()),
		zap.String("tx_hash", donation.TxHash),
		zap.String("amount", donation.Amount.String()),
		zap.String("status", string(donation.Status)),
		zap.Uint64("confirmations", donation.Confirmations))
	return donation, nil
}

// RecheckPending refreshes confirmations for up to limit pending donations and returns how
// many reached the confirmation threshold
func (s *DonationService) RecheckPending(ctx context.Context, limit int) (int, error) {
	if s.chain == nil {
		return 0, nil
	}
	pending, err := s.store.ListPendingDonations(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}

	confirmed := 0
	for _, d := range pending {
		receipt, err := s.chain.TransactionReceipt(ctx, common.HexToHash(d.TxHash))
		if err != nil {
			s.log.Warn("failed to refresh donation", zap.String("tx_hash", d.TxHash), zap.Error(err))
			continue
		}

		status := models.DonationStatusFailed
		count := uint64(0)
		if receipt.Status == types.ReceiptStatusSuccessful {
			count = confirmations(head, receipt.BlockNumber.Uint64())
			status = s.statusFor(count)
		}

		if err := s.store.UpdateDonationStatus(ctx, d.ID, status, count); err != nil {
			if errors.Is(err, database.ErrConflict) {
				continue
			}
			return confirmed, fmt.Errorf("failed to update donation %s: %w", d.ID, err)
		}
		if status == models.DonationStatusConfirmed {
			confirmed++
		}
	}
	return confirmed, nil
}

func (s *DonationService) statusFor(confirmations uint64) models.DonationStatus {
	if confirmations >= s.cfg.MinConfirmations {
		return models.DonationStatusConfirmed
	}
	return models.DonationStatusPending
}
