package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/litellm-go/gateway/pkg/logger"
	"github.com/litellm-go/gateway/pkg/utils"
)

// FileSink appends each Record as one JSON line to a daily spend-log file
// under dir (spec §5's stdout-tier LoggingSink backends — a local
// destination, unlike the out-of-scope Langfuse/Datadog/S3/SQS sinks).
// Grounded on pkg/utils.EnsureStateDir for directory creation and
// StdoutSink's Redact convention for omitting payload content.
type FileSink struct {
	dir    string
	Redact bool

	mu      sync.Mutex
	day     string
	file    *os.File
	encoder *json.Encoder
}

// NewFileSink builds a FileSink rooted at basePath's state directory,
// creating it immediately so a misconfigured path fails at boot rather
// than on the first Emit.
func NewFileSink(basePath string, redact bool) (*FileSink, error) {
	dir, err := utils.EnsureStateDir(basePath)
	if err != nil {
		return nil, err
	}
	return &FileSink{dir: dir, Redact: redact}, nil
}

type fileSinkEntry struct {
	CallID        string    `json:"call_id"`
	Timestamp     time.Time `json:"timestamp"`
	Model         string    `json:"model"`
	ModelGroup    string    `json:"model_group"`
	DeploymentID  string    `json:"deployment_id"`
	Provider      string    `json:"provider"`
	Team          string    `json:"team,omitempty"`
	KeyHash       string    `json:"key_hash,omitempty"`
	LatencyMS     int64     `json:"latency_ms"`
	Retries       int       `json:"retries"`
	FallbackChain []string  `json:"fallback_chain,omitempty"`
	CostTotal     float64   `json:"cost_total"`
	PromptTokens  int       `json:"prompt_tokens"`
	OutputTokens  int       `json:"completion_tokens"`
	CacheHit      bool      `json:"cache_hit"`
	Error         string    `json:"error,omitempty"`
	Messages      int       `json:"messages,omitempty"`
}

// Emit appends one JSON line to today's spend-log file, rotating to a new
// file the first time a Record is emitted on a new UTC day.
func (s *FileSink) Emit(_ context.Context, rec *Record) {
	entry := fileSinkEntry{
		CallID:        rec.CallID,
		Timestamp:     rec.RequestTime,
		Model:         rec.Model,
		ModelGroup:    rec.ModelGroup,
		DeploymentID:  rec.DeploymentID,
		Provider:      rec.Provider,
		Team:          rec.Team,
		KeyHash:       rec.KeyHash,
		LatencyMS:     rec.Latency.Milliseconds(),
		Retries:       rec.Retries,
		FallbackChain: rec.FallbackChain,
		CostTotal:     rec.Cost.Total,
		PromptTokens:  rec.Usage.PromptTokens,
		OutputTokens:  rec.Usage.CompletionTokens,
		CacheHit:      rec.CacheHit,
		Error:         rec.Error,
	}
	if !s.Redact && rec.Request != nil {
		entry.Messages = len(rec.Request.Messages)
	}

	if err := s.write(entry); err != nil {
		logger.GetLogger().Warn("file spend-log write failed", "error", err)
	}
}

func (s *FileSink) write(entry fileSinkEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := entry.Timestamp.UTC().Format("2006-01-02")
	if day != s.day || s.file == nil {
		if s.file != nil {
			s.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(s.dir, "spend-"+day+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		s.file = f
		s.encoder = json.NewEncoder(f)
		s.day = day
	}

	return s.encoder.Encode(entry)
}

// Close closes the currently open spend-log file, if any.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
