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

import (
	"encoding/json"
	"time"
)

// Anchor lifecycle statuses. Pending means no submission attempt has been
// made yet; processing covers both the in-flight submission and the window
// where the transaction was broadcast but not yet confirmed. Completed and
// error are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusRetrying   = "retrying"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Issuance is one issued certificate and the state of its on-chain anchor.
// The queue core never holds an Issuance in memory beyond a single call; all
// status transitions go through narrow datasource updates.
type Issuance struct {
	IssuanceID       string                 `json:"issuance_id"`
	VerificationUUID string                 `json:"verification_uuid"`
	CertificateTitle string                 `json:"certificate_title"`
	Dependency       string                 `json:"dependency"`
	SubjectDocument  string                 `json:"subject_document"`
	SubjectName      string                 `json:"subject_name"`
	PDFHash          string                 `json:"pdf_hash"`
	MetadataURL      string                 `json:"metadata_url"`
	Status           string                 `json:"status"`
	StatusNote       string                 `json:"status_note,omitempty"`
	TransactionHash  string                 `json:"transaction_hash,omitempty"`
	IssuedAt         time.Time              `json:"issued_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
}

func (issuance *Issuance) ToJSON() ([]byte, error) {
	return json.Marshal(issuance)
}

// Anchored reports whether a transaction was ever broadcast for this
// issuance. The hash, once set, is a durable reference and is only
// overwritten by a newer submission.
func (issuance *Issuance) Anchored() bool {
	return issuance.TransactionHash != ""
}
