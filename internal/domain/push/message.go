package push

// WakeUp is the payload of a silent notification: the identity pair whose
// inbox the client should re-check, and nothing else.
type WakeUp struct {
	DID     string `json:"did"`
	Context string `json:"context"`
}

// Data returns the payload as string key/value pairs, the form push
// providers accept for data-only messages.
func (w WakeUp) Data() map[string]string {
	return map[string]string{
		"did":     w.DID,
		"context": w.Context,
	}
}
