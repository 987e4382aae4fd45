// Package did authorizes callers by checking a signed consent message
// against the context signing key published in their DID document.
package did

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/verida/notification-server/internal/domain/registry"
)

// VerificationMethod is one key entry of a DID document.
type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyHex string `json:"publicKeyHex"`
}

// Document is the subset of a DID document needed for authorization.
type Document struct {
	ID                 string               `json:"id"`
	Controller         string               `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
}

// envelope is the DID server response wrapper.
type envelope struct {
	Status string `json:"status"`
	Data   struct {
		Document json.RawMessage `json:"document"`
	} `json:"data"`
}

// ParseDocument decodes a DID document, either bare or wrapped in the DID
// server's {"data":{"document":...}} envelope.
func ParseDocument(raw []byte) (*Document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data.Document) > 0 {
		raw = env.Data.Document
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode DID document: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("DID document has no id")
	}
	return &doc, nil
}

// ContextSigningKey returns the public key registered for signing within
// contextName. The method id carries the context hash and key purpose as
// query parameters: "<did>?context=0x<hash>&type=sign".
func (d *Document) ContextSigningKey(did, contextName string) (string, bool) {
	contextHash := "context=" + registry.DeriveKey(did, contextName).String()

	for _, vm := range d.VerificationMethod {
		id := strings.ToLower(vm.ID)
		if strings.Contains(id, contextHash) && strings.Contains(id, "type=sign") {
			return vm.PublicKeyHex, true
		}
	}
	return "", false
}
