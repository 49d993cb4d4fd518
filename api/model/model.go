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
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func validatePDFHash(value interface{}) error {
	hash, _ := value.(string)
	if hash == "" {
		return nil
	}
	if !strings.HasPrefix(hash, "sha256:") {
		return errors.New("pdf_hash must be a 'sha256:' prefixed hex digest")
	}
	if len(strings.TrimPrefix(hash, "sha256:")) != 64 {
		return errors.New("pdf_hash digest must be 64 hex characters")
	}
	return nil
}

func (i *CreateIssuance) ValidateCreateIssuance() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.CertificateTitle, validation.Required),
		validation.Field(&i.SubjectDocument, validation.Required),
		validation.Field(&i.SubjectName, validation.Required),
		validation.Field(&i.PDFHash, validation.Required, validation.By(validatePDFHash)),
		validation.Field(&i.MetadataURL, validation.Required, is.URL),
	)
}

func (v *VerifyUnconfirmed) ValidateVerifyUnconfirmed() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.ThresholdMinutes, validation.Min(0)),
	)
}
