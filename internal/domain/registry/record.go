package registry

import "slices"

// Record is the persisted set of device tokens registered for one
// (did, context) pair.
type Record struct {
	Key          Key
	Context      string   // stored for debugging; lookups go through Key
	DeviceTokens []string // a set kept in insertion order
	Revision     string   // store-assigned; empty until first persisted
}

// NewRecord creates an unsaved, empty record.
func NewRecord(key Key, context string) *Record {
	return &Record{
		Key:          key,
		Context:      context,
		DeviceTokens: []string{},
	}
}

// IsNew reports whether the record has never been persisted.
func (r *Record) IsNew() bool {
	return r.Revision == ""
}

// HasToken reports whether token is registered.
func (r *Record) HasToken(token string) bool {
	return slices.Contains(r.DeviceTokens, token)
}

// AddToken appends token unless it is already present.
// Returns true when the set changed.
func (r *Record) AddToken(token string) bool {
	if r.HasToken(token) {
		return false
	}
	r.DeviceTokens = append(r.DeviceTokens, token)
	return true
}

// RemoveToken removes token if present. Returns true when the set changed.
func (r *Record) RemoveToken(token string) bool {
	i := slices.Index(r.DeviceTokens, token)
	if i < 0 {
		return false
	}
	r.DeviceTokens = slices.Delete(r.DeviceTokens, i, i+1)
	return true
}

// Tokens returns a copy of the registered tokens.
func (r *Record) Tokens() []string {
	return slices.Clone(r.DeviceTokens)
}

// Dedupe drops repeated tokens, keeping the first occurrence. Stores call it
// on load so a record written by another client can never yield duplicates.
func Dedupe(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
