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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/model"
)

// IssueCertificate records a new issuance and queues its anchor submission.
// The record is durable before the job is enqueued, so an enqueue-time crash
// leaves a pending record the resend sweep can pick up.
func (s *Sello) IssueCertificate(ctx context.Context, issuance *model.Issuance) (*model.Issuance, error) {
	ctx, span := tracer.Start(ctx, "IssueCertificate")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	issuance.IssuanceID = model.GenerateUUIDWithSuffix("isu")
	issuance.VerificationUUID = uuid.New().String()
	issuance.Status = model.StatusPending
	issuance.IssuedAt = s.clock.Now()
	issuance.UpdatedAt = issuance.IssuedAt

	recorded, err := s.datasource.RecordIssuance(ctx, issuance)
	if err != nil {
		return nil, err
	}

	job := model.NewAnchorJob(recorded.IssuanceID, conf.Chain.IssuerWallet, recorded.CertificateTitle, recorded.MetadataURL)
	if err := s.queue.AddAnchorJob(ctx, job); err != nil {
		// The record stays pending; recovery will resend it.
		logrus.WithFields(logrus.Fields{"issuance_id": recorded.IssuanceID}).Errorf("failed to enqueue anchor job: %v", err)
	}

	go SendWebhook(NewWebhook{Event: "issuance.created", Payload: recorded})
	return recorded, nil
}

func (s *Sello) GetIssuance(ctx context.Context, id string) (*model.Issuance, error) {
	ctx, span := tracer.Start(ctx, "GetIssuance")
	defer span.End()
	return s.datasource.GetIssuance(ctx, id)
}

// VerifyCertificate is the public lookup by verification UUID, the value
// printed on the certificate itself.
func (s *Sello) VerifyCertificate(ctx context.Context, verificationUUID string) (*model.Issuance, error) {
	ctx, span := tracer.Start(ctx, "VerifyCertificate")
	defer span.End()
	return s.datasource.GetIssuanceByVerificationUUID(ctx, verificationUUID)
}

func (s *Sello) GetAllIssuances(ctx context.Context, limit, offset int) ([]model.Issuance, error) {
	ctx, span := tracer.Start(ctx, "GetAllIssuances")
	defer span.End()
	return s.datasource.GetAllIssuances(ctx, limit, offset)
}

// GetQueueStats reports the queue's point-in-time state for the ops API.
func (s *Sello) GetQueueStats(_ context.Context) QueueStats {
	return s.queue.Stats()
}
