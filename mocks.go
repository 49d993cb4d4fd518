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
	"fmt"
	"sync"
	"time"

	"github.com/sellolabs/sello/internal/apierror"
	"github.com/sellolabs/sello/model"
)

// MockDataSource is an in-memory datasource used by tests that exercise the
// anchoring lifecycle without a database. It records every status update so
// assertions can inspect the full transition history of a record.
type MockDataSource struct {
	mu        sync.Mutex
	issuances map[string]*model.Issuance
	History   map[string][]string
}

func NewMockDataSource() *MockDataSource {
	return &MockDataSource{
		issuances: make(map[string]*model.Issuance),
		History:   make(map[string][]string),
	}
}

func (m *MockDataSource) RecordIssuance(_ context.Context, issuance *model.Issuance) (*model.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issuance.Status = model.StatusPending
	cp := *issuance
	m.issuances[issuance.IssuanceID] = &cp
	m.History[issuance.IssuanceID] = append(m.History[issuance.IssuanceID], issuance.Status)
	return issuance, nil
}

func (m *MockDataSource) GetIssuance(_ context.Context, id string) (*model.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issuance, ok := m.issuances[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Issuance '%s' not found", id), nil)
	}
	cp := *issuance
	return &cp, nil
}

func (m *MockDataSource) GetIssuanceByVerificationUUID(_ context.Context, uuid string) (*model.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, issuance := range m.issuances {
		if issuance.VerificationUUID == uuid {
			cp := *issuance
			return &cp, nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Issuance '%s' not found", uuid), nil)
}

func (m *MockDataSource) UpdateIssuanceStatus(_ context.Context, id string, status string, note string, transactionHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issuance, ok := m.issuances[id]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Issuance with ID '%s' not found", id), nil)
	}
	issuance.Status = status
	issuance.StatusNote = note
	if transactionHash != "" {
		issuance.TransactionHash = transactionHash
	}
	issuance.UpdatedAt = time.Now()
	m.History[id] = append(m.History[id], status)
	return nil
}

func (m *MockDataSource) GetAllIssuances(_ context.Context, limit, offset int) ([]model.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Issuance
	for _, issuance := range m.issuances {
		out = append(out, *issuance)
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockDataSource) GetPendingIssuances(_ context.Context) ([]*model.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Issuance
	for _, issuance := range m.issuances {
		if issuance.TransactionHash == "" && issuance.Status != model.StatusCompleted && issuance.Status != model.StatusError {
			cp := *issuance
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockDataSource) GetUnconfirmedIssuances(_ context.Context, _ time.Duration, limit int) ([]*model.Issuance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Issuance
	for _, issuance := range m.issuances {
		if (issuance.Status == model.StatusProcessing || issuance.Status == model.StatusRetrying) && issuance.TransactionHash != "" {
			cp := *issuance
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Seed inserts a record directly, bypassing the pending reset.
func (m *MockDataSource) Seed(issuance *model.Issuance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *issuance
	m.issuances[issuance.IssuanceID] = &cp
}
