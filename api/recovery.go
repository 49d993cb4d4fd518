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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	model2 "github.com/sellolabs/sello/api/model"
)

// ResendIssuance re-queues the anchor submission for one issuance.
// Responds 409 when the record is already anchored or has a job in flight.
func (a Api) ResendIssuance(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /issuances/:id/resend"})
		return
	}

	resp, err := a.sello.ResendIssuance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (a Api) ResendPending(c *gin.Context) {
	queued, err := a.sello.ResendPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// VerifyIssuance forces a one-shot receipt check against the chain and
// projects the result onto the record.
func (a Api) VerifyIssuance(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /issuances/:id/verify"})
		return
	}

	resp, err := a.sello.VerifyIssuance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) VerifyUnconfirmed(c *gin.Context) {
	var req model2.VerifyUnconfirmed
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := req.ValidateVerifyUnconfirmed(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	verified, err := a.sello.VerifyUnconfirmed(c.Request.Context(), time.Duration(req.ThresholdMinutes)*time.Minute)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"verified": verified})
}
