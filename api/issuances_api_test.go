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

package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/sellolabs/sello"
	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	err := json.NewDecoder(resp.Body).Decode(&s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func setupRouter() (*gin.Engine, *sello.MockDataSource, error) {
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: "localhost:6379"},
		Chain: config.ChainConfig{
			GatewayUrl:      "http://localhost:9545",
			ContractAddress: "0xabc",
		},
	})
	ds := sello.NewMockDataSource()
	newSello, err := sello.NewSello(ds)
	if err != nil {
		return nil, nil, err
	}
	router := NewAPI(newSello).Router()
	return router, ds, nil
}

func TestCreateIssuance(t *testing.T) {
	router, _, err := setupRouter()
	assert.NoError(t, err)

	payload := fmt.Sprintf(`{
		"certificate_title": "Diploma in Distributed Systems",
		"dependency": "Faculty of Engineering",
		"subject_document": "12345678",
		"subject_name": "Jane Roe",
		"pdf_hash": "%s",
		"metadata_url": "https://certs.example.com/meta/1.json"
	}`, model.HashDocument([]byte("%PDF-1.7 diploma")))

	var response model.Issuance
	testRequest := TestRequest{
		Payload:  strings.NewReader(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/issuances",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.True(t, strings.HasPrefix(response.IssuanceID, "isu_"))
	assert.Equal(t, model.StatusPending, response.Status)
	assert.NotEmpty(t, response.VerificationUUID)
}

func TestCreateIssuanceInvalidPayload(t *testing.T) {
	router, _, err := setupRouter()
	assert.NoError(t, err)

	payload := `{"certificate_title": "Diploma"}`

	var response map[string]interface{}
	testRequest := TestRequest{
		Payload:  strings.NewReader(payload),
		Response: &response,
		Method:   "POST",
		Route:    "/issuances",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, response, "errors")
}

func TestGetIssuance(t *testing.T) {
	router, ds, err := setupRouter()
	assert.NoError(t, err)

	ds.Seed(&model.Issuance{
		IssuanceID:       "isu_test123",
		VerificationUUID: uuid.New().String(),
		CertificateTitle: "Diploma in Applied Cryptography",
		Status:           model.StatusCompleted,
		TransactionHash:  "0xdeadbeef",
	})

	var response model.Issuance
	testRequest := TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/issuances/isu_test123",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "isu_test123", response.IssuanceID)
	assert.Equal(t, "0xdeadbeef", response.TransactionHash)
}

func TestGetIssuanceNotFound(t *testing.T) {
	router, _, err := setupRouter()
	assert.NoError(t, err)

	var response map[string]interface{}
	testRequest := TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/issuances/isu_missing",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestVerifyCertificate(t *testing.T) {
	router, ds, err := setupRouter()
	assert.NoError(t, err)

	verificationUUID := uuid.New().String()
	ds.Seed(&model.Issuance{
		IssuanceID:       "isu_test456",
		VerificationUUID: verificationUUID,
		CertificateTitle: "Diploma in Applied Cryptography",
		Status:           model.StatusCompleted,
	})

	var response model.Issuance
	testRequest := TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/verify/" + verificationUUID,
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "isu_test456", response.IssuanceID)
}

func TestResendCompletedIssuanceConflicts(t *testing.T) {
	router, ds, err := setupRouter()
	assert.NoError(t, err)

	ds.Seed(&model.Issuance{
		IssuanceID:      "isu_done",
		Status:          model.StatusCompleted,
		TransactionHash: "0xdeadbeef",
	})

	var response map[string]interface{}
	testRequest := TestRequest{
		Response: &response,
		Method:   "POST",
		Route:    "/issuances/isu_done/resend",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestGetQueueStats(t *testing.T) {
	router, _, err := setupRouter()
	assert.NoError(t, err)

	var response sello.QueueStats
	testRequest := TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/queue/stats",
		Router:   router,
	}

	resp, err := SetUpTestRequest(testRequest)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, response.QueueLength)
	assert.False(t, response.Draining)
}
