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

// Package chain talks to the signing gateway that broadcasts mint
// transactions and serves transaction receipts. The gateway owns the wallet
// key and gas strategy; this package only submits and polls.
package chain

import (
	"context"
	"errors"
	"fmt"
)

// Receipt status values follow chain receipt semantics: 1 success, 0 reverted.
const (
	ReceiptStatusSuccess  = 1
	ReceiptStatusReverted = 0
)

// ErrNotYetMined is returned by GetReceipt while the transaction is known to
// the gateway but has no receipt yet.
var ErrNotYetMined = errors.New("transaction not yet mined")

// SubmissionError means the mint transaction could not be broadcast at all
// (network, nonce, gas, misconfiguration). No transaction hash exists, so
// the caller may safely retry the submission.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("chain submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// QueryError means a receipt poll itself failed (RPC/transport), which says
// nothing about the transaction's fate.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("chain receipt query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// MintParams are the arguments of one anchoring transaction.
type MintParams struct {
	Issuer      string `json:"issuer"`
	Title       string `json:"title"`
	MetadataRef string `json:"metadata_ref"`
}

// Receipt is the chain's confirmation record for a submitted transaction.
type Receipt struct {
	TransactionHash string `json:"transaction_hash"`
	Status          uint64 `json:"status"`
	BlockNumber     uint64 `json:"block_number"`
}

func (r *Receipt) Successful() bool {
	return r.Status == ReceiptStatusSuccess
}

// Client is the capability the queue core consumes. Submit returns the
// opaque transaction hash used later to query a receipt.
type Client interface {
	Submit(ctx context.Context, params MintParams) (string, error)
	GetReceipt(ctx context.Context, transactionHash string) (*Receipt, error)
}
