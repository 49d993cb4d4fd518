/*
Copyright 2025 Sello Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sello

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/internal/apierror"
	"github.com/sellolabs/sello/internal/chain"
	redlock "github.com/sellolabs/sello/internal/lock"
	"github.com/sellolabs/sello/model"
)

// AnchorRecoveryProcessor periodically sweeps for issuances that hold a
// transaction hash but never reached a terminal status, and verifies them
// directly against the chain. It catches records orphaned by a crash or by
// an exhausted monitoring budget.
type AnchorRecoveryProcessor struct {
	sello          *Sello
	batchSize      int
	maxWorkers     int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewAnchorRecoveryProcessor(sello *Sello) *AnchorRecoveryProcessor {
	maxWorkers := 10
	stuckThreshold := time.Hour
	cfg, err := config.Fetch()
	if err == nil && cfg.Queue.StuckThresholdMin > 0 {
		stuckThreshold = time.Duration(cfg.Queue.StuckThresholdMin) * time.Minute
	}

	return &AnchorRecoveryProcessor{
		sello:          sello,
		batchSize:      maxWorkers * 100,
		maxWorkers:     maxWorkers,
		pollInterval:   30 * time.Second,
		stuckThreshold: stuckThreshold,
		stopCh:         make(chan struct{}),
	}
}

func (p *AnchorRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Anchor recovery processor started")
}

func (p *AnchorRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Anchor recovery processor stopped")
}

func (p *AnchorRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *AnchorRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Anchor recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Anchor recovery processor stop signal received")
			return
		case <-ticker.C:
			p.verifyWithThreshold(ctx, p.stuckThreshold)
		}
	}
}

func (p *AnchorRecoveryProcessor) verifyWithThreshold(ctx context.Context, threshold time.Duration) int {
	stuck, err := p.sello.datasource.GetUnconfirmedIssuances(ctx, threshold, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to get unconfirmed issuances: %v", err)
		return 0
	}

	if len(stuck) == 0 {
		return 0
	}

	logrus.Infof("Verifying %d unconfirmed issuances with %d workers (threshold=%v)", len(stuck), p.maxWorkers, threshold)

	sem := make(chan struct{}, p.maxWorkers)
	var batchWg sync.WaitGroup

	for _, issuance := range stuck {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(record *model.Issuance) {
			defer batchWg.Done()
			defer func() { <-sem }()
			if _, err := p.sello.VerifyIssuance(ctx, record.IssuanceID); err != nil {
				logrus.Errorf("failed to verify issuance %s: %v", record.IssuanceID, err)
			}
		}(issuance)
	}

	batchWg.Wait()
	return len(stuck)
}

// ResendIssuance re-queues the anchor submission for a single issuance. Used
// by operators when a record ended in error or was left pending by a crash.
// A fresh job with a reset attempt counter is enqueued; records that already
// completed, or that still have a job in flight, are rejected.
func (s *Sello) ResendIssuance(ctx context.Context, id string) (*model.Issuance, error) {
	ctx, span := tracer.Start(ctx, "ResendIssuance")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	issuance, err := s.datasource.GetIssuance(ctx, id)
	if err != nil {
		return nil, err
	}
	if issuance.Status == model.StatusCompleted {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Issuance '%s' is already anchored", id), nil)
	}
	// Check the claim before touching the record so a rejected resend leaves
	// the status the running job last wrote.
	if s.queue.InFlight(issuance.IssuanceID) {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Issuance '%s' already has a job in flight", id), nil)
	}

	s.setStatus(ctx, issuance.IssuanceID, model.StatusPending, "resend requested", "")
	job := model.NewAnchorJob(issuance.IssuanceID, conf.Chain.IssuerWallet, issuance.CertificateTitle, issuance.MetadataURL)
	if err := s.queue.AddAnchorJob(ctx, job); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"issuance_id": issuance.IssuanceID, "job_id": job.JobID}).Info("issuance re-queued for anchoring")
	return issuance, nil
}

// ResendPending re-queues every issuance still in the pending status. A
// Redis lock keeps concurrent triggers (or multiple replicas) from double
// enqueueing the same batch.
func (s *Sello) ResendPending(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ResendPending")
	defer span.End()

	locker := redlock.NewLocker(s.redis, "sello:recovery:resend-pending", model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, 5*time.Minute); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrConflict, "A resend-pending sweep is already running", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release resend-pending lock: %v", err)
		}
	}()

	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	pending, err := s.datasource.GetPendingIssuances(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, issuance := range pending {
		job := model.NewAnchorJob(issuance.IssuanceID, conf.Chain.IssuerWallet, issuance.CertificateTitle, issuance.MetadataURL)
		if err := s.queue.AddAnchorJob(ctx, job); err != nil {
			// Already in flight; skip rather than fail the sweep.
			logrus.WithFields(logrus.Fields{"issuance_id": issuance.IssuanceID}).Warnf("skipping pending issuance: %v", err)
			continue
		}
		queued++
	}

	logrus.Infof("resend-pending sweep queued %d of %d pending issuances", queued, len(pending))
	return queued, nil
}

// VerifyIssuance performs a one-shot receipt check for an issuance that
// holds a transaction hash, projecting the result onto the record. Unlike a
// monitoring job it goes straight to the chain without touching the queue,
// so it is safe to run for a record whose jobs concluded long ago.
func (s *Sello) VerifyIssuance(ctx context.Context, id string) (*model.Issuance, error) {
	ctx, span := tracer.Start(ctx, "VerifyIssuance")
	defer span.End()

	issuance, err := s.datasource.GetIssuance(ctx, id)
	if err != nil {
		return nil, err
	}
	if !issuance.Anchored() {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Issuance '%s' has no transaction to verify", id), nil)
	}

	receipt, err := s.chain.GetReceipt(ctx, issuance.TransactionHash)
	if err != nil {
		if errors.Is(err, chain.ErrNotYetMined) {
			logrus.WithFields(logrus.Fields{"issuance_id": id, "tx_hash": issuance.TransactionHash}).Info("transaction still unconfirmed")
			return issuance, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to query transaction receipt", err)
	}

	s.applyReceipt(ctx, issuance.IssuanceID, receipt)
	return s.datasource.GetIssuance(ctx, id)
}

// VerifyUnconfirmed runs an immediate verification sweep over unconfirmed
// issuances using the provided threshold. Exposed for the manual trigger
// API endpoint; the periodic processor calls the same sweep internally.
func (s *Sello) VerifyUnconfirmed(ctx context.Context, threshold time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "VerifyUnconfirmed")
	defer span.End()

	if threshold < 2*time.Minute {
		threshold = 2 * time.Minute
	}

	locker := redlock.NewLocker(s.redis, "sello:recovery:verify-unconfirmed", model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, 5*time.Minute); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrConflict, "A verification sweep is already running", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release verify-unconfirmed lock: %v", err)
		}
	}()

	processor := NewAnchorRecoveryProcessor(s)
	return processor.verifyWithThreshold(ctx, threshold), nil
}
