package couchdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/registry"
	"github.com/verida/notification-server/internal/infrastructure/persistence/storetest"
	"github.com/verida/notification-server/pkg/logger"
)

// fakeCouch answers the handful of CouchDB endpoints the store uses.
type fakeCouch struct {
	mu      sync.Mutex
	dbs     map[string]bool
	docs    map[string]map[string]any
	counter int
}

func newFakeCouch() *fakeCouch {
	return &fakeCouch{dbs: map[string]bool{}, docs: map[string]map[string]any{}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case parts[0] == "_session":
		http.SetCookie(w, &http.Cookie{Name: "AuthSession", Value: "test", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": "admin", "roles": []string{"_admin"}})

	case parts[0] == "_up" || parts[0] == "":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})

	case len(parts) == 1 && r.Method == http.MethodPut:
		if f.dbs[parts[0]] {
			writeJSON(w, http.StatusPreconditionFailed, map[string]any{"error": "file_exists", "reason": "The database could not be created, the file already exists."})
			return
		}
		f.dbs[parts[0]] = true
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})

	case len(parts) == 2 && r.Method == http.MethodGet:
		doc, ok := f.docs[parts[1]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found", "reason": "missing"})
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case len(parts) == 2 && r.Method == http.MethodPut:
		var doc map[string]any
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad_request", "reason": err.Error()})
			return
		}
		rev, _ := doc["_rev"].(string)
		if rev == "" {
			rev = r.URL.Query().Get("rev")
		}
		current, exists := f.docs[parts[1]]
		if (exists && current["_rev"] != rev) || (!exists && rev != "") {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "conflict", "reason": "Document update conflict."})
			return
		}
		f.counter++
		newRev := fmt.Sprintf("%d-%032x", f.counter, f.counter)
		doc["_id"] = parts[1]
		doc["_rev"] = newRev
		f.docs[parts[1]] = doc
		w.Header().Set("ETag", strconv.Quote(newRev))
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": parts[1], "rev": newRev})

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found", "reason": "unsupported"})
	}
}

func newTestStore(t *testing.T, couch *fakeCouch) *Store {
	t.Helper()

	srv := httptest.NewServer(couch)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := &config.CouchDBConfig{
		Protocol:           "http",
		Host:               host,
		Port:               port,
		User:               "admin",
		Password:           "secret",
		Database:           "notification_device_lookup",
		RejectUnauthorized: true,
	}

	store := NewStore(cfg, logger.Nop())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, newTestStore(t, newFakeCouch()))
}

func TestStore_ReadsExistingDocuments(t *testing.T) {
	couch := newFakeCouch()
	couch.dbs["notification_device_lookup"] = true
	couch.docs["0x5898bc0781f2a8bbf133568774516c46f39343994c0e098fbfbb9c494cbacaf3"] = map[string]any{
		"_id":       "0x5898bc0781f2a8bbf133568774516c46f39343994c0e098fbfbb9c494cbacaf3",
		"_rev":      "3-0123456789abcdef",
		"context":   "ctxA",
		"deviceIds": []any{"dev1", "dev2"},
	}
	store := newTestStore(t, couch)
	ctx := context.Background()

	rec, err := store.Get(ctx, registry.DeriveKey("DID:X:1", "ctxA"))
	require.NoError(t, err)
	assert.Equal(t, []string{"dev1", "dev2"}, rec.DeviceTokens)
	assert.Equal(t, "3-0123456789abcdef", rec.Revision)

	rec.AddToken("dev3")
	_, err = store.Put(ctx, rec)
	require.NoError(t, err)

	couch.mu.Lock()
	defer couch.mu.Unlock()
	assert.Len(t, couch.docs, 1)
	assert.Equal(t, []any{"dev1", "dev2", "dev3"}, couch.docs[string(rec.Key)]["deviceIds"])
}
