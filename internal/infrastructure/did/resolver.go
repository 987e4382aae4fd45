package did

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxDocumentSize = 1 << 20

// Resolver fetches the raw DID document for a DID.
type Resolver interface {
	Resolve(ctx context.Context, did string) ([]byte, error)
}

// HTTPResolver loads documents from a DID server's /load endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver for the DID server at baseURL.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve performs GET {baseURL}/load?did=<did>.
func (r *HTTPResolver) Resolve(ctx context.Context, did string) ([]byte, error) {
	if r.baseURL == "" {
		return nil, fmt.Errorf("DID server URL is not configured")
	}

	endpoint := r.baseURL + "/load?did=" + url.QueryEscape(did)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build DID request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load DID document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load DID document: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read DID document: %w", err)
	}
	return body, nil
}
