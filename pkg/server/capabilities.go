package server

import (
	"encoding/json"
	"net/http"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

// modelListResponse is the OpenAI-shaped /v1/models body.
type modelListResponse struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// handleListModels implements GET /v1/models: one entry per configured
// model group name, the litellm-style "model_name" a caller requests
// rather than the provider-native model id.
func (g *Gateway) handleListModels(w http.ResponseWriter, r *http.Request) {
	deps := g.loadDeps()
	seen := make(map[string]bool)
	resp := modelListResponse{Object: "list"}
	for _, entry := range deps.Config.ModelList {
		if seen[entry.ModelName] {
			continue
		}
		seen[entry.ModelName] = true
		ownedBy, _, _ := cutProvider(entry.LiteLLMParams.Model)
		resp.Data = append(resp.Data, modelInfo{ID: entry.ModelName, Object: "model", OwnedBy: ownedBy})
	}
	writeJSON(w, http.StatusOK, resp)
}

func cutProvider(modelRef string) (provider, modelID string, ok bool) {
	for i := 0; i < len(modelRef); i++ {
		if modelRef[i] == '/' {
			return modelRef[:i], modelRef[i+1:], true
		}
	}
	return "", modelRef, false
}

type embeddingRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`
}

type embeddingResponse struct {
	Object string           `json:"object"`
	Model  string           `json:"model"`
	Data   []embeddingDatum `json:"data"`
	Usage  llm.Usage        `json:"usage"`
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// handleEmbeddings implements POST /v1/embeddings. input may be a single
// string or an array of strings, per the OpenAI embeddings contract.
func (g *Gateway) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	deps := g.loadDeps()
	var req embeddingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	inputs, err := decodeStringOrSlice(req.Input)
	if err != nil {
		writeError(w, apierrors.New(apierrors.BadRequest, "input must be a string or array of strings"))
		return
	}

	dep, err := deps.Registry.ResolveModel(req.Model, "")
	if err != nil {
		writeError(w, err)
		return
	}
	resolved, adapter, err := deps.Registry.Resolve(dep, providers.Overrides{})
	if err != nil {
		writeError(w, err)
		return
	}
	embedder, ok := adapter.(providers.EmbeddingAdapter)
	if !ok {
		writeError(w, apierrors.New(apierrors.BadRequest, "model %q does not support embeddings", req.Model))
		return
	}

	vectors, usage, err := embedder.Embed(r.Context(), resolved, inputs)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := embeddingResponse{Object: "list", Model: req.Model, Usage: usage}
	for i, v := range vectors {
		resp.Data = append(resp.Data, embeddingDatum{Object: "embedding", Index: i, Embedding: v})
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeStringOrSlice(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Model   string                     `json:"model"`
	Results []providers.RerankResult `json:"results"`
}

// handleRerank implements POST /v1/rerank.
func (g *Gateway) handleRerank(w http.ResponseWriter, r *http.Request) {
	deps := g.loadDeps()
	var req rerankRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	dep, err := deps.Registry.ResolveModel(req.Model, "")
	if err != nil {
		writeError(w, err)
		return
	}
	resolved, adapter, err := deps.Registry.Resolve(dep, providers.Overrides{})
	if err != nil {
		writeError(w, err)
		return
	}
	reranker, ok := adapter.(providers.RerankAdapter)
	if !ok {
		writeError(w, apierrors.New(apierrors.BadRequest, "model %q does not support rerank", req.Model))
		return
	}

	results, err := reranker.Rerank(r.Context(), resolved, req.Query, req.Documents, req.TopN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rerankResponse{Model: req.Model, Results: results})
}

// responsesRequest is the minimal subset of the OpenAI Responses API body
// the gateway translates into its own unified Request: a single "input"
// field standing in for "messages", either a plain string (one user turn)
// or an already-shaped message list.
type responsesRequest struct {
	Model           string          `json:"model"`
	Input           json.RawMessage `json:"input"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
}

// handleResponses implements POST /v1/responses by translating into the
// same chat-completion path every other endpoint uses; the gateway answers
// with its unified Response/StreamChunk envelope rather than re-deriving
// the Responses API's own output-item wire shape, the same simplification
// handleMessages makes for the Anthropic Messages API.
func (g *Gateway) handleResponses(w http.ResponseWriter, r *http.Request) {
	var in responsesRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	messages, err := responsesInputToMessages(in.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	req := llm.Request{
		Model:           in.Model,
		Messages:        messages,
		MaxOutputTokens: in.MaxOutputTokens,
		Stream:          in.Stream,
	}
	g.runTranslatedChat(w, r, &req)
}

func responsesInputToMessages(raw json.RawMessage) ([]llm.Message, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []llm.Message{{Role: llm.RoleUser, Content: llm.NewText(text)}}, nil
	}
	var messages []llm.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, apierrors.New(apierrors.BadRequest, "input must be a string or an array of messages")
	}
	return messages, nil
}

// messagesRequest is the minimal subset of the Anthropic Messages API body.
type messagesRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []llm.Message `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream,omitempty"`
}

// handleMessages implements POST /v1/messages (Anthropic Messages API
// shape), translated into the same unified chat path as handleResponses.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	var in messagesRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	messages := in.Messages
	if in.System != "" {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: llm.NewText(in.System)}}, messages...)
	}

	req := llm.Request{
		Model:     in.Model,
		Messages:  messages,
		MaxTokens: in.MaxTokens,
		Stream:    in.Stream,
	}
	g.runTranslatedChat(w, r, &req)
}

// runTranslatedChat re-enters the chat-completion dispatch path with an
// already-translated unified Request, the way handleResponses/handleMessages
// share the router/cost/logging machinery handleChatCompletions owns.
func (g *Gateway) runTranslatedChat(w http.ResponseWriter, r *http.Request, req *llm.Request) {
	g.runChatRequest(w, r, req)
}

// handleUnsupportedCapability returns a generic handler for routes the
// gateway's request/response translation layer does not yet implement
// (image/audio/video/search/vector-store endpoints): they are declared in
// the route table per spec §6 so clients get a typed 400 naming the
// missing capability rather than a 404, but no adapter in this gateway
// implements providers.Capability beyond chat/embedding/rerank today.
func (g *Gateway) handleUnsupportedCapability(cap providers.Capability) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, apierrors.New(apierrors.BadRequest, "capability %q is not implemented by any configured adapter", cap))
	}
}
