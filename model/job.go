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

package model

import "time"

// Job kinds as reported by queue stats.
const (
	JobKindAnchor  = "anchor"
	JobKindMonitor = "monitor"
)

// Job is one unit of queued anchoring work. Jobs live only in the queue
// engine's memory and are never persisted; rescheduling re-inserts the same
// value with its counters advanced. The two concrete kinds are AnchorJob and
// MonitorJob so each variant's required fields are type-checked instead of
// hiding behind a kind string.
type Job interface {
	ID() string
	Kind() string
	Issuance() string
}

// AnchorJob submits a new mint transaction for an issuance.
type AnchorJob struct {
	JobID       string    `json:"job_id"`
	IssuanceID  string    `json:"issuance_id"`
	Issuer      string    `json:"issuer"`
	Title       string    `json:"title"`
	MetadataRef string    `json:"metadata_ref"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewAnchorJob(issuanceID, issuer, title, metadataRef string) *AnchorJob {
	return &AnchorJob{
		JobID:       GenerateUUIDWithSuffix("job"),
		IssuanceID:  issuanceID,
		Issuer:      issuer,
		Title:       title,
		MetadataRef: metadataRef,
		CreatedAt:   time.Now(),
	}
}

func (j *AnchorJob) ID() string       { return j.JobID }
func (j *AnchorJob) Kind() string     { return JobKindAnchor }
func (j *AnchorJob) Issuance() string { return j.IssuanceID }

// MonitorJob polls for the receipt of an already-broadcast transaction. It
// reuses the durable transaction hash stored on the issuance record and never
// submits anything itself.
type MonitorJob struct {
	JobID            string    `json:"job_id"`
	IssuanceID       string    `json:"issuance_id"`
	TransactionHash  string    `json:"transaction_hash"`
	CheckAttempts    int       `json:"check_attempts"`
	MaxCheckAttempts int       `json:"max_check_attempts"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewMonitorJob(issuanceID, transactionHash string, maxCheckAttempts int) *MonitorJob {
	return &MonitorJob{
		JobID:            GenerateUUIDWithSuffix("monitor"),
		IssuanceID:       issuanceID,
		TransactionHash:  transactionHash,
		MaxCheckAttempts: maxCheckAttempts,
		CreatedAt:        time.Now(),
	}
}

func (j *MonitorJob) ID() string       { return j.JobID }
func (j *MonitorJob) Kind() string     { return JobKindMonitor }
func (j *MonitorJob) Issuance() string { return j.IssuanceID }
