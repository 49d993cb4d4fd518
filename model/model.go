package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID prefixed with a module name.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// HashDocument returns the prefixed SHA-256 digest of a document's bytes.
// The digest is anchored on chain alongside the issuance metadata so a
// verifier can prove the PDF they hold is the one that was issued.
func HashDocument(document []byte) string {
	hash := sha256.Sum256(document)
	return "sha256:" + hex.EncodeToString(hash[:])
}
