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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/internal/chain"
	"github.com/sellolabs/sello/internal/notification"
	"github.com/sellolabs/sello/model"
)

var tracer = otel.Tracer("sello.anchor")

// RunAnchor executes one submission attempt for an issuance. Submission
// failures are retried through delayed requeues with jittered backoff; a
// broadcast transaction that does not confirm before the timeout is handed
// off to a monitoring job so the queue never blocks on a slow chain.
func (s *Sello) RunAnchor(ctx context.Context, job *model.AnchorJob) (Disposition, error) {
	ctx, span := tracer.Start(ctx, "RunAnchor")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return Disposition{}, err
	}

	attempt := job.Attempts + 1
	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "issuance_id": job.IssuanceID, "attempt": attempt}).Info("processing anchor job")

	s.setStatus(ctx, job.IssuanceID, model.StatusProcessing, fmt.Sprintf("submission attempt %d of %d", attempt, conf.Queue.MaxRetries+1), "")

	hash, err := s.chain.Submit(ctx, chain.MintParams{
		Issuer:      job.Issuer,
		Title:       job.Title,
		MetadataRef: job.MetadataRef,
	})
	if err != nil {
		return s.handleSubmissionFailure(ctx, job, conf, err), nil
	}

	// The hash is persisted before the confirmation wait so a crash during
	// the wait still leaves a durable reference for recovery to pick up.
	s.setStatus(ctx, job.IssuanceID, model.StatusProcessing, "transaction broadcast, awaiting confirmation", hash)

	receipt := s.awaitConfirmation(ctx, hash, conf)
	if receipt == nil {
		logrus.WithFields(logrus.Fields{"issuance_id": job.IssuanceID, "tx_hash": hash}).Warn("confirmation timed out, handing off to monitoring")
		s.setStatus(ctx, job.IssuanceID, model.StatusProcessing, "confirmation pending, under monitoring", hash)
		s.queue.AddMonitoringJob(ctx, model.NewMonitorJob(job.IssuanceID, hash, conf.Queue.MaxCheckAttempts))
		go SendWebhook(NewWebhook{Event: "anchor.monitoring", Payload: map[string]string{"issuance_id": job.IssuanceID, "transaction_hash": hash}})
		return Disposition{}, nil
	}

	s.applyReceipt(ctx, job.IssuanceID, receipt)
	return Disposition{}, nil
}

func (s *Sello) handleSubmissionFailure(ctx context.Context, job *model.AnchorJob, conf *config.Configuration, err error) Disposition {
	// The first attempt is free; MaxRetries counts the requeues on top of
	// it, so the total budget is MaxRetries+1 submissions.
	if job.Attempts < conf.Queue.MaxRetries {
		job.Attempts++
		delay := jitteredDelay(time.Duration(conf.Queue.RetryDelaySec)*time.Second, job.Attempts)
		logrus.WithFields(logrus.Fields{"issuance_id": job.IssuanceID, "attempt": job.Attempts, "delay": delay}).Warnf("submission failed, will retry: %v", err)
		s.setStatus(ctx, job.IssuanceID, model.StatusRetrying, fmt.Sprintf("submission failed, retry %d of %d scheduled", job.Attempts, conf.Queue.MaxRetries), "")
		return Disposition{Requeue: true, Delay: delay}
	}

	attempts := job.Attempts + 1
	logrus.WithFields(logrus.Fields{"issuance_id": job.IssuanceID}).Errorf("submission failed after %d attempts: %v", attempts, err)
	s.setStatus(ctx, job.IssuanceID, model.StatusError, fmt.Sprintf("submission failed after %d attempts: %v", attempts, err), "")
	notification.NotifyError(fmt.Errorf("anchor submission for issuance %s exhausted retries: %w", job.IssuanceID, err))
	go SendWebhook(NewWebhook{Event: "anchor.failed", Payload: map[string]string{"issuance_id": job.IssuanceID, "reason": "submission failed"}})
	return Disposition{}
}

// awaitConfirmation polls for a receipt until the confirmation timeout
// elapses. Transient query failures and not-yet-mined responses are both
// treated as absence; only a real receipt ends the wait early. Returns nil
// on timeout.
func (s *Sello) awaitConfirmation(ctx context.Context, hash string, conf *config.Configuration) *chain.Receipt {
	deadline := s.clock.Now().Add(conf.ConfirmationTimeout())
	poll := time.Duration(conf.Chain.ConfirmationPollSec) * time.Second

	for {
		receipt, err := s.chain.GetReceipt(ctx, hash)
		if err == nil {
			return receipt
		}
		if !errors.Is(err, chain.ErrNotYetMined) {
			logrus.WithFields(logrus.Fields{"tx_hash": hash}).Warnf("receipt query failed during confirmation wait: %v", err)
		}

		if !s.clock.Now().Add(poll).Before(deadline) {
			return nil
		}
		s.clock.Sleep(ctx, poll)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// RunMonitor executes one confirmation check for a previously broadcast
// transaction. The check budget covers both not-yet-mined responses and
// query failures; once exhausted the record is left in processing with a
// note asking for manual verification rather than being marked failed,
// since the transaction may well have succeeded.
func (s *Sello) RunMonitor(ctx context.Context, job *model.MonitorJob) (Disposition, error) {
	ctx, span := tracer.Start(ctx, "RunMonitor")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return Disposition{}, err
	}

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "issuance_id": job.IssuanceID, "check": job.CheckAttempts + 1, "max_checks": job.MaxCheckAttempts}).Info("checking transaction confirmation")

	receipt, err := s.chain.GetReceipt(ctx, job.TransactionHash)
	if err == nil {
		s.applyReceipt(ctx, job.IssuanceID, receipt)
		return Disposition{}, nil
	}

	job.CheckAttempts++
	if job.CheckAttempts >= job.MaxCheckAttempts {
		logrus.WithFields(logrus.Fields{"issuance_id": job.IssuanceID, "tx_hash": job.TransactionHash}).Warn("monitoring budget exhausted, leaving record for manual verification")
		s.setStatus(ctx, job.IssuanceID, model.StatusProcessing, "confirmation still outstanding, needs manual verification", job.TransactionHash)
		notification.NotifyError(fmt.Errorf("issuance %s (tx %s) unconfirmed after %d checks", job.IssuanceID, job.TransactionHash, job.CheckAttempts))
		return Disposition{}, nil
	}

	delay := time.Duration(conf.Queue.MonitorDelaySec) * time.Second
	if !errors.Is(err, chain.ErrNotYetMined) {
		// Query failures reschedule sooner; the chain may just be briefly
		// unreachable.
		delay = time.Duration(conf.Queue.MonitorErrorDelaySec) * time.Second
		logrus.WithFields(logrus.Fields{"issuance_id": job.IssuanceID, "tx_hash": job.TransactionHash}).Warnf("receipt query failed: %v", err)
	}
	return Disposition{Requeue: true, Delay: delay}, nil
}

// applyReceipt projects a final receipt onto the issuance record. Safe to
// call for an already-completed record; the projection is idempotent.
func (s *Sello) applyReceipt(ctx context.Context, issuanceID string, receipt *chain.Receipt) {
	if receipt.Successful() {
		logrus.WithFields(logrus.Fields{"issuance_id": issuanceID, "tx_hash": receipt.TransactionHash, "block": receipt.BlockNumber}).Info("anchor confirmed")
		s.setStatus(ctx, issuanceID, model.StatusCompleted, fmt.Sprintf("anchored in block %d", receipt.BlockNumber), receipt.TransactionHash)
		go SendWebhook(NewWebhook{Event: "anchor.completed", Payload: map[string]string{"issuance_id": issuanceID, "transaction_hash": receipt.TransactionHash}})
		return
	}

	// A reverted transaction is a contract-level rejection; resubmitting
	// the same mint would revert again, so no retry.
	logrus.WithFields(logrus.Fields{"issuance_id": issuanceID, "tx_hash": receipt.TransactionHash}).Error("anchor transaction reverted")
	s.setStatus(ctx, issuanceID, model.StatusError, "transaction reverted on chain", receipt.TransactionHash)
	notification.NotifyError(fmt.Errorf("anchor transaction %s for issuance %s reverted", receipt.TransactionHash, issuanceID))
	go SendWebhook(NewWebhook{Event: "anchor.failed", Payload: map[string]string{"issuance_id": issuanceID, "transaction_hash": receipt.TransactionHash, "reason": "transaction reverted"}})
}

// setStatus is a best-effort projection of job progress onto the record.
// Failures are logged and swallowed; bookkeeping must never stall the
// anchoring pipeline.
func (s *Sello) setStatus(ctx context.Context, issuanceID, status, note, transactionHash string) {
	if err := s.datasource.UpdateIssuanceStatus(ctx, issuanceID, status, note, transactionHash); err != nil {
		logrus.WithFields(logrus.Fields{"issuance_id": issuanceID, "status": status}).Errorf("failed to update issuance status: %v", err)
	}
}

// jitteredDelay returns the backoff delay for the given attempt number,
// starting at base and doubling per attempt with randomization.
func jitteredDelay(base time.Duration, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0.25
	b.MaxInterval = 10 * base
	b.MaxElapsedTime = 0
	// NewExponentialBackOff seeds its state from the defaults, so the
	// intervals above only take effect after a reset.
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
