// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package custody exposes transfer and etching operations over custody accounts.
package custody

import (
	"context"
	"encoding/base64"
	"errors"
	"math/big"

	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin/chain"
	"github.com/BoostyLabs/runecustody/bitcoin/etching"
	"github.com/BoostyLabs/runecustody/bitcoin/ingest"
	"github.com/BoostyLabs/runecustody/bitcoin/ord/runes"
	"github.com/BoostyLabs/runecustody/bitcoin/signer"
	"github.com/BoostyLabs/runecustody/bitcoin/submission"
	"github.com/BoostyLabs/runecustody/bitcoin/txbuilder"
	"github.com/BoostyLabs/runecustody/bitcoin/utxopool"
)

// ErrInvalidRequest defines that request misses required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Config defines configurable values of the service.
type Config struct {
	// Postage defines bitcoin value of rune outputs, txbuilder.DefaultPostage if zero.
	Postage uint64
	// SyncBeforeBuild defines whether spending addresses are synced with the chain before each draft.
	SyncBeforeBuild bool
}

// BitcoinTransfer describes plain transfer request. Zero FeeRate means the chain estimation.
type BitcoinTransfer struct {
	From         signer.Account
	To           string
	Amount       uint64
	PaidBySender bool
	FeeRate      uint64
}

// RuneTransfer describes rune transfer request, the sender pays the fee when FeePayer is nil.
type RuneTransfer struct {
	RuneID   runes.RuneID
	Amount   *big.Int
	From     signer.Account
	To       string
	FeePayer *signer.Account
	FeeRate  uint64
}

// CombinedTransfer describes request of runes and bitcoin moved by one transaction.
type CombinedTransfer struct {
	RuneID        runes.RuneID
	RuneAmount    *big.Int
	RuneFrom      signer.Account
	RuneTo        string
	BitcoinAmount uint64
	BitcoinFrom   signer.Account
	BitcoinTo     string
	FeePayer      *signer.Account
	FeeRate       uint64
}

// Etch describes etching request, the premine goes to the Holder account.
type Etch struct {
	Name         string
	Divisibility uint8
	Premine      *big.Int
	Symbol       *rune
	Turbo        bool
	Holder       signer.Account
	FeePayer     signer.Account
	FeeRate      uint64
	Logo         []byte
	ContentType  string
}

// Preview describes unsigned draft which was built and released back to the pool.
type Preview struct {
	Kind  string           `json:"kind"`
	TxID  string           `json:"txid"`
	Fee   uint64           `json:"fee"`
	PSBT  string           `json:"psbt"`
	Roles map[string][]int `json:"roles"`
}

// EtchPreview describes unsigned etching.
type EtchPreview struct {
	Commit        *Preview `json:"commit"`
	CommitAddress string   `json:"commit_address"`
	RevealTxID    string   `json:"reveal_txid"`
	RevealFee     uint64   `json:"reveal_fee"`
	RevealPSBT    string   `json:"reveal_psbt"`
}

// Holding describes custody state of the address.
type Holding struct {
	Address string            `json:"address"`
	Bitcoin uint64            `json:"bitcoin"`
	UTXOs   int               `json:"utxos"`
	Runes   map[string]string `json:"runes"`
}

// Service builds, signs and submits custody transactions.
type Service struct {
	config    Config
	gateway   *signer.Gateway
	pool      *utxopool.Pool
	builder   *txbuilder.TxBuilder
	etcher    *etching.Etcher
	submitter *submission.Submitter
	client    chain.Client
	syncer    *ingest.Syncer
	log       *log.Entry
}

// NewService is a constructor for Service.
func NewService(
	config Config,
	gateway *signer.Gateway,
	pool *utxopool.Pool,
	builder *txbuilder.TxBuilder,
	submitter *submission.Submitter,
	client chain.Client,
	syncer *ingest.Syncer,
) *Service {
	return &Service{
		config:    config,
		gateway:   gateway,
		pool:      pool,
		builder:   builder,
		etcher:    etching.NewEtcher(builder, gateway),
		submitter: submitter,
		client:    client,
		syncer:    syncer,
		log:       log.WithField("component", "custody"),
	}
}

// Address returns custody address of the account.
func (s *Service) Address(account signer.Account) (string, error) {
	return s.gateway.Address(account)
}

// Balance returns bitcoin balance of the account held by the pool.
func (s *Service) Balance(account signer.Account) (uint64, error) {
	address, err := s.gateway.Address(account)
	if err != nil {
		return 0, err
	}

	return s.pool.Balance(address), nil
}

// RuneBalance returns rune balance of the account held by the pool.
func (s *Service) RuneBalance(account signer.Account, id runes.RuneID) (*big.Int, error) {
	address, err := s.gateway.Address(account)
	if err != nil {
		return nil, err
	}

	return s.pool.RuneBalance(address, id), nil
}

// Sync records chain utxos of the account into the pool.
func (s *Service) Sync(ctx context.Context, account signer.Account, target ingest.Target) (ingest.Result, error) {
	address, err := s.gateway.Address(account)
	if err != nil {
		return ingest.Result{}, err
	}

	return s.syncer.Sync(ctx, address, target)
}

// TransferBitcoin sends bitcoin from the account.
func (s *Service) TransferBitcoin(ctx context.Context, request BitcoinTransfer) (*submission.Submission, error) {
	draft, err := s.draftBitcoin(ctx, request)
	if err != nil {
		return nil, err
	}

	return s.submitter.Submit(ctx, draft)
}

// PreviewBitcoin builds the bitcoin transfer without broadcasting it.
func (s *Service) PreviewBitcoin(ctx context.Context, request BitcoinTransfer) (*Preview, error) {
	draft, err := s.draftBitcoin(ctx, request)
	if err != nil {
		return nil, err
	}

	return preview(draft)
}

func (s *Service) draftBitcoin(ctx context.Context, request BitcoinTransfer) (*txbuilder.Draft, error) {
	sender, err := s.gateway.Party(request.From)
	if err != nil {
		return nil, err
	}
	feeRate, err := s.feeRate(ctx, request.FeeRate)
	if err != nil {
		return nil, err
	}
	if err = s.sync(ctx, sender.Address, ingest.BitcoinTarget(request.Amount)); err != nil {
		return nil, err
	}

	return s.builder.BuildBitcoinTransfer(s.pool, txbuilder.BitcoinTransferParams{
		Sender:       sender,
		Receiver:     request.To,
		Amount:       request.Amount,
		PaidBySender: request.PaidBySender,
		FeeRate:      feeRate,
	})
}

// TransferRunes sends runes from the account.
func (s *Service) TransferRunes(ctx context.Context, request RuneTransfer) (*submission.Submission, error) {
	draft, err := s.draftRunes(ctx, request)
	if err != nil {
		return nil, err
	}

	return s.submitter.Submit(ctx, draft)
}

// PreviewRunes builds the rune transfer without broadcasting it.
func (s *Service) PreviewRunes(ctx context.Context, request RuneTransfer) (*Preview, error) {
	draft, err := s.draftRunes(ctx, request)
	if err != nil {
		return nil, err
	}

	return preview(draft)
}

func (s *Service) draftRunes(ctx context.Context, request RuneTransfer) (*txbuilder.Draft, error) {
	if request.Amount == nil {
		return nil, ErrInvalidRequest
	}

	sender, err := s.gateway.Party(request.From)
	if err != nil {
		return nil, err
	}
	feePayer, err := s.feePayer(request.FeePayer, sender)
	if err != nil {
		return nil, err
	}
	feeRate, err := s.feeRate(ctx, request.FeeRate)
	if err != nil {
		return nil, err
	}
	if err = s.sync(ctx, sender.Address, ingest.RuneTarget(request.RuneID, request.Amount)); err != nil {
		return nil, err
	}
	if err = s.sync(ctx, feePayer.Address, ingest.BitcoinTarget(0)); err != nil {
		return nil, err
	}

	return s.builder.BuildRuneTransfer(s.pool, txbuilder.RuneTransferParams{
		RuneID:   request.RuneID,
		Amount:   request.Amount,
		Sender:   sender,
		Receiver: request.To,
		FeePayer: feePayer,
		Postage:  s.config.Postage,
		FeeRate:  feeRate,
	})
}

// TransferCombined moves runes and bitcoin by one transaction.
func (s *Service) TransferCombined(ctx context.Context, request CombinedTransfer) (*submission.Submission, error) {
	draft, err := s.draftCombined(ctx, request)
	if err != nil {
		return nil, err
	}

	return s.submitter.Submit(ctx, draft)
}

// PreviewCombined builds the combined transfer without broadcasting it.
func (s *Service) PreviewCombined(ctx context.Context, request CombinedTransfer) (*Preview, error) {
	draft, err := s.draftCombined(ctx, request)
	if err != nil {
		return nil, err
	}

	return preview(draft)
}

func (s *Service) draftCombined(ctx context.Context, request CombinedTransfer) (*txbuilder.Draft, error) {
	if request.RuneAmount == nil {
		return nil, ErrInvalidRequest
	}

	runeSender, err := s.gateway.Party(request.RuneFrom)
	if err != nil {
		return nil, err
	}
	bitcoinSender, err := s.gateway.Party(request.BitcoinFrom)
	if err != nil {
		return nil, err
	}
	feePayer, err := s.feePayer(request.FeePayer, bitcoinSender)
	if err != nil {
		return nil, err
	}
	feeRate, err := s.feeRate(ctx, request.FeeRate)
	if err != nil {
		return nil, err
	}
	if err = s.sync(ctx, runeSender.Address, ingest.RuneTarget(request.RuneID, request.RuneAmount)); err != nil {
		return nil, err
	}
	if err = s.sync(ctx, bitcoinSender.Address, ingest.BitcoinTarget(request.BitcoinAmount)); err != nil {
		return nil, err
	}
	if feePayer.Address != bitcoinSender.Address {
		if err = s.sync(ctx, feePayer.Address, ingest.BitcoinTarget(0)); err != nil {
			return nil, err
		}
	}

	return s.builder.BuildCombinedTransfer(s.pool, txbuilder.CombinedTransferParams{
		RuneID:          request.RuneID,
		RuneAmount:      request.RuneAmount,
		RuneSender:      runeSender,
		RuneReceiver:    request.RuneTo,
		BitcoinAmount:   request.BitcoinAmount,
		BitcoinSender:   bitcoinSender,
		BitcoinReceiver: request.BitcoinTo,
		FeePayer:        feePayer,
		Postage:         s.config.Postage,
		FeeRate:         feeRate,
	})
}

// Etch builds commit and reveal of the new rune, broadcasts the commit and schedules the reveal.
func (s *Service) Etch(ctx context.Context, request Etch) (*submission.EtchingSubmission, error) {
	etched, err := s.draftEtching(ctx, request)
	if err != nil {
		return nil, err
	}

	return s.submitter.SubmitEtching(ctx, etched, request.Name)
}

// PreviewEtch builds commit and reveal of the new rune without broadcasting them.
func (s *Service) PreviewEtch(ctx context.Context, request Etch) (*EtchPreview, error) {
	etched, err := s.draftEtching(ctx, request)
	if err != nil {
		return nil, err
	}

	commit, err := preview(etched.Commit)
	if err != nil {
		return nil, err
	}

	reveal, err := etched.RevealPSBT()
	if err != nil {
		return nil, err
	}

	return &EtchPreview{
		Commit:        commit,
		CommitAddress: etched.CommitAddress(),
		RevealTxID:    etched.Reveal.TxHash().String(),
		RevealFee:     etched.RevealFee,
		RevealPSBT:    base64.StdEncoding.EncodeToString(reveal),
	}, nil
}

func (s *Service) draftEtching(ctx context.Context, request Etch) (*etching.Etching, error) {
	feePayer, err := s.gateway.Party(request.FeePayer)
	if err != nil {
		return nil, err
	}
	holder, err := s.gateway.Address(request.Holder)
	if err != nil {
		return nil, err
	}
	feeRate, err := s.feeRate(ctx, request.FeeRate)
	if err != nil {
		return nil, err
	}
	if err = s.sync(ctx, feePayer.Address, ingest.BitcoinTarget(0)); err != nil {
		return nil, err
	}

	return s.etcher.Etch(ctx, s.pool, etching.Params{
		Name:          request.Name,
		Divisibility:  request.Divisibility,
		Premine:       request.Premine,
		Symbol:        request.Symbol,
		Turbo:         request.Turbo,
		RevealAddress: holder,
		FeePayer:      feePayer,
		FeeRate:       feeRate,
		Logo:          request.Logo,
		ContentType:   request.ContentType,
	})
}

// Holdings returns custody state of every address known to the pool.
func (s *Service) Holdings() []Holding {
	addresses := s.pool.Addresses()
	holdings := make([]Holding, 0, len(addresses))
	for _, address := range addresses {
		snapshot := s.pool.Snapshot(address)

		holding := Holding{Address: address, UTXOs: len(snapshot.Bitcoin), Runes: make(map[string]string, len(snapshot.Runes))}
		for _, utxo := range snapshot.Bitcoin {
			holding.Bitcoin += utxo.Value
		}
		for id, utxos := range snapshot.Runes {
			total := new(big.Int)
			for _, utxo := range utxos {
				total.Add(total, utxo.Balance)
			}
			holding.UTXOs += len(utxos)
			holding.Runes[id.String()] = total.String()
		}

		holdings = append(holdings, holding)
	}

	return holdings
}

func (s *Service) feePayer(account *signer.Account, fallback signer.Party) (signer.Party, error) {
	if account == nil {
		return fallback, nil
	}

	return s.gateway.Party(*account)
}

func (s *Service) feeRate(ctx context.Context, requested uint64) (uint64, error) {
	if requested > 0 {
		return requested, nil
	}

	return chain.FeeRate(ctx, s.client)
}

func (s *Service) sync(ctx context.Context, address string, target ingest.Target) error {
	if !s.config.SyncBeforeBuild {
		return nil
	}

	_, err := s.syncer.Sync(ctx, address, target)

	return err
}

// preview exports the draft as PSBT and returns its utxos to the pool.
func preview(draft *txbuilder.Draft) (*Preview, error) {
	defer draft.Reservation.Restore()

	raw, err := draft.PSBT()
	if err != nil {
		return nil, err
	}

	roles, err := txbuilder.RoleInputsFromPSBT(raw)
	if err != nil {
		return nil, err
	}

	result := &Preview{
		Kind:  draft.Kind,
		TxID:  draft.Tx.TxHash().String(),
		Fee:   draft.Fee,
		PSBT:  base64.StdEncoding.EncodeToString(raw),
		Roles: make(map[string][]int, len(roles)),
	}
	for role, indexes := range roles {
		result.Roles[role.String()] = indexes
	}

	return result, nil
}
