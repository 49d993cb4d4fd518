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

package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/internal/request"
)

// GatewayClient implements Client against the HTTP signing gateway.
//
// POST {gateway}/mint                  -> 201 {"transaction_hash": "0x..."}
// GET  {gateway}/receipts/{hash}      -> 200 {"transaction_hash","status","block_number"}
//
//	404 while not yet mined
type GatewayClient struct {
	baseUrl         string
	contractAddress string
	authToken       string
}

// NewGatewayClient builds a client from the chain section of the
// configuration.
func NewGatewayClient(conf *config.Configuration) *GatewayClient {
	return &GatewayClient{
		baseUrl:         strings.TrimRight(conf.Chain.GatewayUrl, "/"),
		contractAddress: conf.Chain.ContractAddress,
		authToken:       conf.Chain.AuthToken,
	}
}

type mintRequest struct {
	Contract    string `json:"contract"`
	Issuer      string `json:"issuer"`
	Title       string `json:"title"`
	MetadataRef string `json:"metadata_ref"`
}

type mintResponse struct {
	TransactionHash string `json:"transaction_hash"`
	Error           string `json:"error,omitempty"`
}

func (g *GatewayClient) Submit(ctx context.Context, params MintParams) (string, error) {
	payload, err := request.ToJsonReq(mintRequest{
		Contract:    g.contractAddress,
		Issuer:      params.Issuer,
		Title:       params.Title,
		MetadataRef: params.MetadataRef,
	})
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseUrl+"/mint", payload)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	g.authorize(req)

	var resp mintResponse
	httpResp, err := request.Call(req, &resp)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", &SubmissionError{Err: fmt.Errorf("gateway returned %d: %s", httpResp.StatusCode, resp.Error)}
	}
	if resp.TransactionHash == "" {
		return "", &SubmissionError{Err: fmt.Errorf("gateway returned no transaction hash")}
	}
	return resp.TransactionHash, nil
}

func (g *GatewayClient) GetReceipt(ctx context.Context, transactionHash string) (*Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseUrl+"/receipts/"+transactionHash, nil)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	g.authorize(req)

	// decode after the status check: a 404 body is empty while the
	// transaction is unmined, which is not a query failure
	httpResp, err := request.Call(req, nil)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return nil, ErrNotYetMined
	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		return nil, &QueryError{Err: fmt.Errorf("gateway returned %d", httpResp.StatusCode)}
	}

	var receipt Receipt
	if err := json.NewDecoder(httpResp.Body).Decode(&receipt); err != nil {
		return nil, &QueryError{Err: err}
	}

	if receipt.TransactionHash == "" {
		receipt.TransactionHash = transactionHash
	}
	return &receipt, nil
}

func (g *GatewayClient) authorize(req *http.Request) {
	if g.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.authToken)
	}
}
