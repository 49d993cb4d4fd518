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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/sellolabs/sello/config"
)

func TestSendWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Webhook: struct {
			Url     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		}{Url: "http://localhost:5001/webhook", Headers: map[string]string{"X-Signature": "sig"}}},
	})

	var received NewWebhook
	var gotHeader string
	httpmock.RegisterResponder("POST", "http://localhost:5001/webhook",
		func(req *http.Request) (*http.Response, error) {
			gotHeader = req.Header.Get("X-Signature")
			if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	err := SendWebhook(NewWebhook{
		Event:   "anchor.completed",
		Payload: map[string]string{"issuance_id": "isu_123", "transaction_hash": "0xabc"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "anchor.completed", received.Event)
	assert.Equal(t, "sig", gotHeader)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSendWebhookDisabledWithoutURL(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{})

	err := SendWebhook(NewWebhook{Event: "issuance.created", Payload: map[string]string{"issuance_id": "isu_456"}})
	assert.NoError(t, err)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestSendWebhookNon2xxIsNotAnError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Webhook: struct {
			Url     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		}{Url: "http://localhost:5001/webhook"}},
	})

	httpmock.RegisterResponder("POST", "http://localhost:5001/webhook",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	err := SendWebhook(NewWebhook{Event: "anchor.failed", Payload: map[string]string{"issuance_id": "isu_789"}})
	assert.NoError(t, err)
}
