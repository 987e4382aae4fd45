package did

import (
	"context"
	"strings"

	"github.com/verida/notification-server/pkg/logger"
)

// DocumentCache stores raw DID documents keyed by "<did>/<context>".
type DocumentCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, document []byte) error
}

// Validator decides whether a caller may act as a DID within a context.
type Validator struct {
	resolver Resolver
	cache    DocumentCache
	log      logger.Logger
}

// NewValidator creates a validator. cache may be nil, in which case every
// call resolves the document.
func NewValidator(resolver Resolver, cache DocumentCache, log logger.Logger) *Validator {
	return &Validator{
		resolver: resolver,
		cache:    cache,
		log:      log.With(logger.Component("did")),
	}
}

// NormalizeDID maps a basic-auth username back to a DID. Colons are not
// allowed in basic-auth usernames, so clients send them as underscores.
func NormalizeDID(username string) string {
	return strings.ToLower(strings.ReplaceAll(username, "_", ":"))
}

// Authorize reports whether signature is a valid consent signature by
// did's signing key for contextName. Every failure, including an
// unresolvable DID, is reported as not authorized.
func (v *Validator) Authorize(ctx context.Context, did, contextName, signature string) bool {
	did = strings.ToLower(did)
	if did == "" || contextName == "" || signature == "" {
		return false
	}

	doc, err := v.document(ctx, did, contextName)
	if err != nil {
		v.log.Warn("Unable to resolve DID document",
			logger.AppContext(contextName),
			logger.Error(err),
		)
		return false
	}

	publicKey, ok := doc.ContextSigningKey(did, contextName)
	if !ok {
		v.log.Debug("No signing key for context", logger.AppContext(contextName))
		return false
	}

	valid, err := VerifySignature(ConsentMessage(did, contextName), signature, publicKey)
	if err != nil {
		v.log.Debug("Signature verification failed",
			logger.AppContext(contextName),
			logger.Error(err),
		)
		return false
	}
	return valid
}

func (v *Validator) document(ctx context.Context, did, contextName string) (*Document, error) {
	cacheKey := did + "/" + contextName

	if v.cache != nil {
		raw, ok, err := v.cache.Get(ctx, cacheKey)
		if err != nil {
			v.log.Warn("DID document cache read failed", logger.Error(err))
		} else if ok {
			if doc, err := ParseDocument(raw); err == nil {
				return doc, nil
			}
		}
	}

	raw, err := v.resolver.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, cacheKey, raw); err != nil {
			v.log.Warn("DID document cache write failed", logger.Error(err))
		}
	}
	return doc, nil
}
