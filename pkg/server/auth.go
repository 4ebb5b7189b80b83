package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/mcp"
)

// VirtualKey is the minimal caller identity the gateway itself resolves
// from a Bearer token. Budget/rpm/tpm/team policy lookups are PolicyStore's
// job (spec §6: "out-of-scope modules implement these") — KeyStore only
// carries what the gateway needs to build a router.CallContext and an
// mcp.Caller without a PolicyStore configured.
type VirtualKey struct {
	Hash            string
	Team            string
	AllowedModels   []string
	AccessGroups    []string
	AllowedTools    []string
	DisallowedTools []string
}

// KeyStore resolves a raw API key to a VirtualKey. The in-memory
// implementation here is a stand-in for the PolicyStore collaborator spec
// §6 leaves external; it's what cmd/gateway populates from general_settings
// and any keys import file.
type KeyStore struct {
	mu        sync.RWMutex
	masterKey string
	keys      map[string]VirtualKey
}

// NewKeyStore builds a KeyStore that always accepts masterKey (when
// non-empty) as a superuser key with no model/tool restrictions.
func NewKeyStore(masterKey string) *KeyStore {
	return &KeyStore{masterKey: masterKey, keys: make(map[string]VirtualKey)}
}

// Add registers a virtual key (e.g. from `keys import`).
func (s *KeyStore) Add(rawKey string, vk VirtualKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[rawKey] = vk
}

// KeyRecord is one entry of a `keys import` file: a raw key plus the policy
// the gateway itself can enforce without a PolicyStore configured.
type KeyRecord struct {
	Key             string   `json:"key"`
	Team            string   `json:"team,omitempty"`
	AllowedModels   []string `json:"allowed_models,omitempty"`
	AccessGroups    []string `json:"access_groups,omitempty"`
	AllowedTools    []string `json:"allowed_tools,omitempty"`
	DisallowedTools []string `json:"disallowed_tools,omitempty"`
}

// LoadKeysFile parses a `keys import` file: a JSON array of KeyRecord.
func LoadKeysFile(path string) ([]KeyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	var records []KeyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	for i, r := range records {
		if r.Key == "" {
			return nil, fmt.Errorf("keys[%d]: key is required", i)
		}
	}
	return records, nil
}

// HashKey returns the stable, non-reversible identity spec §3's KeyHash
// refers to, used to label LoggingRecords without retaining the raw key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])[:16]
}

// Import loads a batch of KeyRecords into the store, keyed by their raw
// key, and returns the count added.
func (s *KeyStore) Import(records []KeyRecord) int {
	for _, r := range records {
		s.Add(r.Key, VirtualKey{
			Hash:            HashKey(r.Key),
			Team:            r.Team,
			AllowedModels:   r.AllowedModels,
			AccessGroups:    r.AccessGroups,
			AllowedTools:    r.AllowedTools,
			DisallowedTools: r.DisallowedTools,
		})
	}
	return len(records)
}

// Resolve looks up rawKey, returning the master superuser identity when it
// matches the configured master_key.
func (s *KeyStore) Resolve(rawKey string) (VirtualKey, bool) {
	if rawKey == "" {
		return VirtualKey{}, false
	}
	if s.masterKey != "" && rawKey == s.masterKey {
		return VirtualKey{Hash: "master"}, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	vk, ok := s.keys[rawKey]
	return vk, ok
}

// bearerKey extracts the raw key from Authorization: Bearer <key> or the
// x-litellm-api-key header, per spec §6's dual-header contract.
func bearerKey(r *http.Request) string {
	if v := r.Header.Get("x-litellm-api-key"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// authMiddleware resolves the caller's VirtualKey and stores it in the
// request context; every /v1 route behind it requires a key.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deps := g.loadDeps()
		if deps.Keys == nil {
			next.ServeHTTP(w, r)
			return
		}
		raw := bearerKey(r)
		vk, ok := deps.Keys.Resolve(raw)
		if !ok {
			writeError(w, apierrors.New(apierrors.AuthenticationError, "missing or invalid API key"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyCaller, vk)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withAuth wraps a single handler with authMiddleware, for routes declared
// outside the /v1 sub-router (e.g. /v1/models sits at the top level so it
// can be listed before auth is required by some deployments, but this
// gateway still requires a key for it).
func (g *Gateway) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.authMiddleware(h).ServeHTTP(w, r)
	}
}

// callerFrom extracts the VirtualKey a prior authMiddleware stored.
func callerFrom(ctx context.Context) (VirtualKey, bool) {
	v, ok := ctx.Value(ctxKeyCaller).(VirtualKey)
	return v, ok
}

// mcpCaller projects a VirtualKey into the mcp.Caller shape the MCP
// gateway's access control needs (spec §4.7).
func mcpCaller(vk VirtualKey) mcp.Caller {
	return mcp.Caller{
		KeyID:           vk.Hash,
		TeamID:          vk.Team,
		AccessGroups:    vk.AccessGroups,
		AllowedTools:    vk.AllowedTools,
		DisallowedTools: vk.DisallowedTools,
	}
}
