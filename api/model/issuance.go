package model

import (
	"github.com/sellolabs/sello/model"
)

type CreateIssuance struct {
	CertificateTitle string                 `json:"certificate_title"`
	Dependency       string                 `json:"dependency"`
	SubjectDocument  string                 `json:"subject_document"`
	SubjectName      string                 `json:"subject_name"`
	PDFHash          string                 `json:"pdf_hash"`
	MetadataURL      string                 `json:"metadata_url"`
	MetaData         map[string]interface{} `json:"meta_data"`
}

func (i *CreateIssuance) ToIssuance() *model.Issuance {
	return &model.Issuance{
		CertificateTitle: i.CertificateTitle,
		Dependency:       i.Dependency,
		SubjectDocument:  i.SubjectDocument,
		SubjectName:      i.SubjectName,
		PDFHash:          i.PDFHash,
		MetadataURL:      i.MetadataURL,
		MetaData:         i.MetaData,
	}
}

type VerifyUnconfirmed struct {
	ThresholdMinutes int `json:"threshold_minutes"`
}
