// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package submission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"github.com/BoostyLabs/runecustody/bitcoin"
	"github.com/BoostyLabs/runecustody/bitcoin/chain"
	"github.com/BoostyLabs/runecustody/bitcoin/etching"
	"github.com/BoostyLabs/runecustody/internal/metrics"
)

// DefaultRevealInterval defines how often pending reveals check the commit confirmations.
const DefaultRevealInterval = time.Minute

// tickTimeout limits single check of the pending reveal.
const tickTimeout = 30 * time.Second

// trackedReveal is a pending reveal with its machine.
type trackedReveal struct {
	mu      sync.Mutex
	reveal  *PendingReveal
	machine *fsm.FSM
}

// RevealScheduler broadcasts etching reveals once their commits are confirmed.
// Every pending reveal is checked by its own singleton job.
type RevealScheduler struct {
	scheduler *gocron.Scheduler
	client    chain.Client
	store     RevealStore
	interval  time.Duration
	log       *log.Entry

	mu      sync.Mutex
	pending map[uuid.UUID]*trackedReveal
}

// NewRevealScheduler is a constructor for RevealScheduler.
func NewRevealScheduler(client chain.Client, store RevealStore, interval time.Duration) *RevealScheduler {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}

	return &RevealScheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		client:    client,
		store:     store,
		interval:  interval,
		log:       log.WithField("component", "reveal-scheduler"),
		pending:   make(map[uuid.UUID]*trackedReveal),
	}
}

// Start starts checking scheduled reveals in background.
func (s *RevealScheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and waits for running checks.
func (s *RevealScheduler) Stop() {
	s.scheduler.Stop()
}

// Resume re-registers reveals saved in the store, used at start-up.
func (s *RevealScheduler) Resume(ctx context.Context) error {
	reveals, err := s.store.Reveals()
	if err != nil {
		return err
	}

	for _, reveal := range reveals {
		if err = s.Schedule(ctx, reveal); err != nil {
			return err
		}
	}

	s.log.WithField("count", len(reveals)).Info("pending reveals resumed")

	return nil
}

// Schedule persists the pending reveal and registers its job, a reveal already pending is left as is.
// The job is registered even when the store fails, the reveal is then lost only on restart.
func (s *RevealScheduler) Schedule(ctx context.Context, reveal *PendingReveal) error {
	tracked := &trackedReveal{reveal: reveal}
	tracked.machine = newRevealMachine(reveal.State, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			tracked.reveal.State = e.Dst
		},
	})

	var err error
	switch tracked.machine.Current() {
	case StateCommitBroadcast:
		err = tracked.machine.Event(ctx, EventAwait)
	case StateRevealBroadcast:
		// interrupted broadcast, the reveal is sent again.
		err = tracked.machine.Event(ctx, EventRetry)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.pending[reveal.ID]; ok {
		s.mu.Unlock()
		return nil
	}
	s.pending[reveal.ID] = tracked
	count := len(s.pending)
	s.mu.Unlock()
	metrics.PendingReveals.Set(float64(count))

	if err = s.store.SaveReveal(reveal); err != nil {
		s.log.WithError(err).WithField("id", reveal.ID).Error("could not save reveal, it is kept in memory only")
	}

	_, err = s.scheduler.Every(s.interval).Tag(reveal.ID.String()).SingletonMode().Do(s.run, reveal.ID)
	if err != nil {
		s.mu.Lock()
		delete(s.pending, reveal.ID)
		count = len(s.pending)
		s.mu.Unlock()
		metrics.PendingReveals.Set(float64(count))

		return err
	}

	s.log.WithFields(log.Fields{"id": reveal.ID, "rune": reveal.Rune, "commit": reveal.CommitOutpoint.String()}).
		Info("reveal scheduled")

	return nil
}

// Pending returns ids of reveals that are not broadcast yet.
func (s *RevealScheduler) Pending() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}

	return ids
}

// State returns current state of the pending reveal.
func (s *RevealScheduler) State(id uuid.UUID) (string, error) {
	s.mu.Lock()
	tracked, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return "", ErrRevealNotFound
	}

	tracked.mu.Lock()
	defer tracked.mu.Unlock()

	return tracked.machine.Current(), nil
}

// run is a job of the single reveal.
func (s *RevealScheduler) run(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	if _, err := s.Tick(ctx, id); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("reveal check failed")
	}
}

// Tick checks the commit of the reveal and broadcasts the reveal once the commit has
// etching.CommitConfirmations confirmations. Returns true when the reveal was accepted.
func (s *RevealScheduler) Tick(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	tracked, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return false, ErrRevealNotFound
	}

	tracked.mu.Lock()
	defer tracked.mu.Unlock()

	reveal := tracked.reveal
	confirmations, err := s.commitConfirmations(ctx, reveal)
	if err != nil {
		return false, err
	}
	if confirmations < etching.CommitConfirmations {
		s.log.WithFields(log.Fields{"id": id, "confirmations": confirmations}).Debug("commit is not mature")
		return false, nil
	}

	if err = tracked.machine.Event(ctx, EventReveal); err != nil {
		return false, err
	}

	if err = s.client.SendTransaction(ctx, reveal.Reveal); err != nil {
		metrics.Broadcasts.WithLabelValues("reveal", "failure").Inc()

		reveal.Attempts++
		if eventErr := tracked.machine.Event(ctx, EventRetry); eventErr != nil {
			return false, eventErr
		}
		if saveErr := s.store.SaveReveal(reveal); saveErr != nil {
			s.log.WithError(saveErr).WithField("id", id).Error("could not save reveal")
		}

		return false, &bitcoin.BroadcastError{TxID: reveal.RevealTxID.String(), Err: err}
	}
	metrics.Broadcasts.WithLabelValues("reveal", "success").Inc()

	if err = tracked.machine.Event(ctx, EventFinish); err != nil {
		return false, err
	}

	s.forget(id)
	s.log.WithFields(log.Fields{"id": id, "rune": reveal.Rune, "txid": reveal.RevealTxID.String()}).Info("reveal broadcast")

	return true, nil
}

// commitConfirmations returns confirmations of the commit output, 0 when it is not found.
func (s *RevealScheduler) commitConfirmations(ctx context.Context, reveal *PendingReveal) (uint32, error) {
	var (
		page string
		tip  uint32
	)
	for {
		utxos, err := s.client.UTXOs(ctx, reveal.CommitAddress, page)
		if err != nil {
			return 0, err
		}
		if page == "" {
			tip = utxos.TipHeight
		}

		for _, utxo := range utxos.UTXOs {
			if utxo.Outpoint == reveal.CommitOutpoint {
				return utxo.Confirmations(tip), nil
			}
		}

		if utxos.NextPage == "" {
			return 0, nil
		}
		page = utxos.NextPage
	}
}

// forget removes accepted reveal from the store and the scheduler.
func (s *RevealScheduler) forget(id uuid.UUID) {
	if err := s.store.DeleteReveal(id); err != nil {
		s.log.WithError(err).WithField("id", id).Error("could not delete reveal")
	}

	s.mu.Lock()
	delete(s.pending, id)
	count := len(s.pending)
	s.mu.Unlock()
	metrics.PendingReveals.Set(float64(count))

	if err := s.scheduler.RemoveByTag(id.String()); err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		s.log.WithError(err).WithField("id", id).Error("could not remove reveal job")
	}
}
