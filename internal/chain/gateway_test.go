package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/sellolabs/sello/config"
)

func newTestGateway() *GatewayClient {
	config.MockConfig(&config.Configuration{
		Chain: config.ChainConfig{
			GatewayUrl:      "http://gateway.example.com",
			ContractAddress: "0xcontract",
			IssuerWallet:    "0xissuer",
			AuthToken:       "token-123",
		},
	})
	conf, _ := config.Fetch()
	return NewGatewayClient(conf)
}

func TestSubmitSuccess(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	gateway := newTestGateway()

	httpmock.RegisterResponder("POST", "http://gateway.example.com/mint",
		httpmock.NewStringResponder(200, `{"transaction_hash": "0xabc123"}`))

	hash, err := gateway.Submit(context.Background(), MintParams{
		Issuer:      "0xissuer",
		Title:       "Diploma",
		MetadataRef: "ipfs://meta",
	})
	assert.NoError(t, err)
	assert.Equal(t, "0xabc123", hash)
}

func TestSubmitFailureIsSubmissionError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	gateway := newTestGateway()

	httpmock.RegisterResponder("POST", "http://gateway.example.com/mint",
		httpmock.NewStringResponder(500, `{"error": "signer unavailable"}`))

	_, err := gateway.Submit(context.Background(), MintParams{Issuer: "0xissuer", Title: "Diploma", MetadataRef: "ipfs://meta"})
	assert.Error(t, err)

	var submissionErr *SubmissionError
	assert.True(t, errors.As(err, &submissionErr))
}

func TestGetReceiptSuccess(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	gateway := newTestGateway()

	httpmock.RegisterResponder("GET", "http://gateway.example.com/receipts/0xabc",
		httpmock.NewStringResponder(200, `{"transaction_hash": "0xabc", "status": 1, "block_number": 42}`))

	receipt, err := gateway.GetReceipt(context.Background(), "0xabc")
	assert.NoError(t, err)
	assert.Equal(t, "0xabc", receipt.TransactionHash)
	assert.True(t, receipt.Successful())
	assert.Equal(t, uint64(42), receipt.BlockNumber)
}

func TestGetReceiptNotYetMined(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	gateway := newTestGateway()

	httpmock.RegisterResponder("GET", "http://gateway.example.com/receipts/0xpending",
		httpmock.NewStringResponder(404, ""))

	_, err := gateway.GetReceipt(context.Background(), "0xpending")
	assert.ErrorIs(t, err, ErrNotYetMined)
}

func TestGetReceiptReverted(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	gateway := newTestGateway()

	httpmock.RegisterResponder("GET", "http://gateway.example.com/receipts/0xbad",
		httpmock.NewStringResponder(200, `{"transaction_hash": "0xbad", "status": 0, "block_number": 10}`))

	receipt, err := gateway.GetReceipt(context.Background(), "0xbad")
	assert.NoError(t, err)
	assert.False(t, receipt.Successful())
}

func TestGetReceiptGatewayErrorIsQueryError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	gateway := newTestGateway()

	httpmock.RegisterResponder("GET", "http://gateway.example.com/receipts/0xerr",
		httpmock.NewStringResponder(502, "bad gateway"))

	_, err := gateway.GetReceipt(context.Background(), "0xerr")
	assert.Error(t, err)

	var queryErr *QueryError
	assert.True(t, errors.As(err, &queryErr))
	assert.False(t, errors.Is(err, ErrNotYetMined))
}
