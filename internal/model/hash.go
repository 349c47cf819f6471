package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// encoding to change without colliding with stored hashes.
const (
	DomainModel     = "cvdsim/model/v1"
	DomainCatalogue = "cvdsim/catalogue/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Canonical returns the definition as a canonical-JSON-ready object.
// Dwell times are encoded as integer nanoseconds.
func (d Definition) Canonical() map[string]any {
	states := make([]any, len(d.States))
	for i, s := range d.States {
		states[i] = map[string]any{
			"id":         s.ID,
			"cause_type": string(s.CauseType),
			"dwell_ns":   int64(s.Dwell),
		}
	}
	transitions := make([]any, len(d.Transitions))
	for i, t := range d.Transitions {
		transitions[i] = map[string]any{
			"from":     t.From,
			"to":       t.To,
			"kind":     string(t.Kind),
			"provider": t.Provider,
		}
	}
	return map[string]any{
		"name":        d.Name,
		"susceptible": d.Susceptible,
		"states":      states,
		"transitions": transitions,
	}
}

// Hash returns the content hash of a single definition.
func (d Definition) Hash() (string, error) {
	data, err := MarshalCanonical(d.Canonical())
	if err != nil {
		return "", fmt.Errorf("hash model %s: %w", d.Name, err)
	}
	return HashWithDomain(DomainModel, data), nil
}

// Hash returns the content hash of a set of definitions plus arbitrary
// canonical extras (for example rate parameters). Definitions are keyed by
// name, so declaration order across models does not affect the hash.
func Hash(defs []Definition, extra map[string]any) (string, error) {
	models := make(map[string]any, len(defs))
	for _, d := range defs {
		models[d.Name] = d.Canonical()
	}
	obj := map[string]any{"models": models}
	if extra != nil {
		obj["extra"] = extra
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("hash catalogue: %w", err)
	}
	return HashWithDomain(DomainCatalogue, data), nil
}
