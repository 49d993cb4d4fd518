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
	"strconv"

	"github.com/sirupsen/logrus"

	model2 "github.com/sellolabs/sello/api/model"

	"github.com/gin-gonic/gin"
)

// CreateIssuance records a new certificate issuance and queues its
// on-chain anchoring. The response carries the pending record; anchoring
// progress is reported through webhooks and the status field.
func (a Api) CreateIssuance(c *gin.Context) {
	var newIssuance model2.CreateIssuance
	if err := c.ShouldBindJSON(&newIssuance); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	err := newIssuance.ValidateCreateIssuance()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.sello.IssueCertificate(c.Request.Context(), newIssuance.ToIssuance())
	if err != nil {
		logrus.Error(err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetIssuance(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /issuances/:id"})
		return
	}

	resp, err := a.sello.GetIssuance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllIssuances(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	resp, err := a.sello.GetAllIssuances(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyCertificate is the public certificate lookup by the verification
// UUID printed on the document.
func (a Api) VerifyCertificate(c *gin.Context) {
	uuid, passed := c.Params.Get("uuid")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uuid is required. pass the verification uuid in the route /verify/:uuid"})
		return
	}

	resp, err := a.sello.VerifyCertificate(c.Request.Context(), uuid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, a.sello.GetQueueStats(c.Request.Context()))
}
