package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sellolabs/sello/model"
)

func validCreateIssuance() CreateIssuance {
	return CreateIssuance{
		CertificateTitle: "Diploma in Applied Cryptography",
		Dependency:       "Faculty of Engineering",
		SubjectDocument:  "12345678",
		SubjectName:      "Jane Roe",
		PDFHash:          model.HashDocument([]byte("%PDF-1.7 diploma")),
		MetadataURL:      "https://certs.example.com/meta/isu_123.json",
	}
}

func TestValidateCreateIssuance(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(i *CreateIssuance)
		wantErr bool
	}{
		{
			name:    "Valid request",
			mutate:  func(i *CreateIssuance) {},
			wantErr: false,
		},
		{
			name:    "Missing certificate title",
			mutate:  func(i *CreateIssuance) { i.CertificateTitle = "" },
			wantErr: true,
		},
		{
			name:    "Missing subject document",
			mutate:  func(i *CreateIssuance) { i.SubjectDocument = "" },
			wantErr: true,
		},
		{
			name:    "Missing subject name",
			mutate:  func(i *CreateIssuance) { i.SubjectName = "" },
			wantErr: true,
		},
		{
			name:    "Missing pdf hash",
			mutate:  func(i *CreateIssuance) { i.PDFHash = "" },
			wantErr: true,
		},
		{
			name:    "Hash without sha256 prefix",
			mutate:  func(i *CreateIssuance) { i.PDFHash = strings.Repeat("ab", 32) },
			wantErr: true,
		},
		{
			name:    "Hash digest too short",
			mutate:  func(i *CreateIssuance) { i.PDFHash = "sha256:abcd" },
			wantErr: true,
		},
		{
			name:    "Missing metadata url",
			mutate:  func(i *CreateIssuance) { i.MetadataURL = "" },
			wantErr: true,
		},
		{
			name:    "Metadata url not a url",
			mutate:  func(i *CreateIssuance) { i.MetadataURL = "not a url" },
			wantErr: true,
		},
		{
			name:    "Dependency is optional",
			mutate:  func(i *CreateIssuance) { i.Dependency = "" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateIssuance()
			tt.mutate(&req)
			err := req.ValidateCreateIssuance()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateVerifyUnconfirmed(t *testing.T) {
	assert.NoError(t, (&VerifyUnconfirmed{}).ValidateVerifyUnconfirmed())
	assert.NoError(t, (&VerifyUnconfirmed{ThresholdMinutes: 90}).ValidateVerifyUnconfirmed())
	assert.Error(t, (&VerifyUnconfirmed{ThresholdMinutes: -5}).ValidateVerifyUnconfirmed())
}

func TestToIssuanceCopiesFields(t *testing.T) {
	req := validCreateIssuance()
	req.MetaData = map[string]interface{}{"cohort": "2026-A"}

	issuance := req.ToIssuance()
	assert.Equal(t, req.CertificateTitle, issuance.CertificateTitle)
	assert.Equal(t, req.Dependency, issuance.Dependency)
	assert.Equal(t, req.SubjectDocument, issuance.SubjectDocument)
	assert.Equal(t, req.SubjectName, issuance.SubjectName)
	assert.Equal(t, req.PDFHash, issuance.PDFHash)
	assert.Equal(t, req.MetadataURL, issuance.MetadataURL)
	assert.Equal(t, req.MetaData, issuance.MetaData)
}
