package tech

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainTechnology separates technology hashes from any other content hash.
const DomainTechnology = "hdrc/technology/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// contentHash hashes the layers and rules in declaration order. The name
// is left out so renaming a technology keeps cached results.
func contentHash(t *Technology) (string, error) {
	data, err := json.Marshal(struct {
		Layers []Layer
		Rules  []Rule
	}{t.Layers, t.Rules})
	if err != nil {
		return "", fmt.Errorf("hash technology: %w", err)
	}
	return hashWithDomain(DomainTechnology, data), nil
}
