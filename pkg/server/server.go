// Package server implements the gateway's OpenAI-compatible HTTP surface
// (spec §6): chat/completions, embeddings, rerank, responses, messages, and
// the MCP tool-gateway endpoints, plus health/models/metrics. Routing uses
// chi the way kadirpekel/hector's pkg/config.ServerConfig assumes for its
// transport layer; the request lifecycle (auth middleware, then per-route
// handler, then a LoggingRecord emitted exactly once) is new to this
// package since the teacher's own HTTP surface is a gRPC-gateway proxy for
// its agent A2A protocol, not an OpenAI-compatible completion API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/litellm-go/gateway/pkg/config"
	"github.com/litellm-go/gateway/pkg/cost"
	"github.com/litellm-go/gateway/pkg/hooks"
	"github.com/litellm-go/gateway/pkg/logger"
	"github.com/litellm-go/gateway/pkg/logging"
	"github.com/litellm-go/gateway/pkg/mcp"
	"github.com/litellm-go/gateway/pkg/observability"
	"github.com/litellm-go/gateway/pkg/providers"
	"github.com/litellm-go/gateway/pkg/router"
)

// Deps holds every gateway component the HTTP handlers use. It holds no
// per-request state; Deps is assembled once at boot (and rebuilt whole on
// config hot-reload, swapped atomically by Gateway.Reload).
type Deps struct {
	Config     *config.Config
	Registry   *providers.Registry
	Router     *router.Router
	Pipeline   *hooks.Pipeline
	Cost       *cost.Engine
	Dispatcher *logging.Dispatcher
	MCP        *mcp.Gateway
	Keys       *KeyStore
	Obs        *observability.Manager
}

// Gateway is the top-level HTTP server. It supports atomic config reload by
// swapping its Deps pointer; in-flight requests keep using the Deps they
// started with.
type Gateway struct {
	depsMu  sync.RWMutex
	deps    *Deps
	httpSrv *http.Server
}

func (g *Gateway) loadDeps() *Deps {
	g.depsMu.RLock()
	defer g.depsMu.RUnlock()
	return g.deps
}

// New builds a Gateway bound to addr, serving the routes router() declares.
func New(deps *Deps, addr string) *Gateway {
	g := &Gateway{deps: deps}
	g.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           g.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Reload swaps the live Deps, e.g. after a config file change (spec §6's
// YAML config is loaded once at boot but the Loader supports hot-reload).
func (g *Gateway) Reload(deps *Deps) {
	g.depsMu.Lock()
	g.deps = deps
	g.depsMu.Unlock()
	logger.GetLogger().Info("gateway config reloaded")
}

// ListenAndServe starts serving, blocking until the context is cancelled or
// a fatal listener error occurs.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := g.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("gateway listener: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return g.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) router() http.Handler {
	deps := g.loadDeps()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(observability.HTTPMiddleware(deps.Obs.Tracer(), deps.Obs.Metrics()))

	r.Get("/health", g.handleHealth)
	r.Get(deps.Obs.MetricsEndpoint(), g.handleMetrics)
	r.Get("/v1/models", g.withAuth(g.handleListModels))

	r.Route("/v1", func(r chi.Router) {
		r.Use(g.authMiddleware)
		r.Post("/chat/completions", g.handleChatCompletions)
		r.Post("/embeddings", g.handleEmbeddings)
		r.Post("/rerank", g.handleRerank)
		r.Post("/responses", g.handleResponses)
		r.Post("/messages", g.handleMessages)
		r.Post("/audio/speech", g.handleUnsupportedCapability(providers.CapAudioSpeech))
		r.Post("/images/generations", g.handleUnsupportedCapability(providers.CapImageGenerate))
		r.Post("/images/edits", g.handleUnsupportedCapability(providers.CapImageEdit))
		r.Post("/videos/generations", g.handleUnsupportedCapability(providers.CapVideoGenerate))
		r.Get("/videos/{id}", g.handleUnsupportedCapability(providers.CapVideoFetch))
		r.Post("/search", g.handleUnsupportedCapability(providers.CapSearch))
		r.Route("/vector_stores", func(r chi.Router) {
			r.Post("/", g.handleUnsupportedCapability(providers.CapVectorSearch))
		})
		r.Get("/mcp/tools", g.handleMCPListTools)
		r.Post("/mcp/call", g.handleMCPCallTool)
	})

	return r
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok"}`)
}

func (g *Gateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.loadDeps().Obs.MetricsHandler().ServeHTTP(w, r)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("x-request-id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("x-request-id", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.GetLogger().Debug("http request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyCaller
)

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return uuid.NewString()
}
