package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default model classifier configuration values.
const (
	DefaultClassifierModel   = "llama3.2:1b"
	DefaultClassifierTimeout = 2 * time.Second
	DefaultOllamaHost        = "http://localhost:11434"
)

// ModelConfig holds configuration for the model-backed classifier.
type ModelConfig struct {
	// Model is the Ollama model to use for classification.
	Model string

	// Timeout bounds a single classification request. The heuristic path
	// takes over when this elapses.
	Timeout time.Duration

	// Host is the Ollama API base URL.
	Host string
}

// DefaultModelConfig returns sensible defaults for the model classifier.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:   DefaultClassifierModel,
		Timeout: DefaultClassifierTimeout,
		Host:    DefaultOllamaHost,
	}
}

// ModelClassifier requests a structured classification from a language model.
// Implementations are fallible and time-bounded; callers fall back to the
// heuristic path on any error.
type ModelClassifier interface {
	Classify(ctx context.Context, queryText string) (*Analysis, error)
}

// OllamaClassifier implements ModelClassifier against the Ollama HTTP API.
type OllamaClassifier struct {
	client *http.Client
	config ModelConfig
}

var _ ModelClassifier = (*OllamaClassifier)(nil)

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

// generateResponse is the Ollama /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// modelClassification is the structured output requested from the model.
// Optional fields stay pointers so absence is distinguishable from zero.
type modelClassification struct {
	QueryType           string             `json:"query_type"`
	Weights             map[string]float64 `json:"weights"`
	Reasoning           string             `json:"reasoning"`
	DetectedIdentifiers []string           `json:"detected_identifiers,omitempty"`
	HasTypos            *bool              `json:"has_typos,omitempty"`
	Confidence          *float64           `json:"confidence,omitempty"`
}

// NewOllamaClassifier creates a model-backed classifier with the given config.
func NewOllamaClassifier(cfg ModelConfig) *OllamaClassifier {
	if cfg.Model == "" {
		cfg.Model = DefaultClassifierModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClassifierTimeout
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}

	return &OllamaClassifier{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// classificationPrompt asks for JSON so the response can be parsed directly.
const classificationPrompt = `You are a search query classifier for a code/document corpus.
Classify the query into exactly one type:

- "conceptual": natural language seeking meaning ("how does authentication work")
- "identifier": targets a specific code token ("getUserById", "MAX_RETRIES")
- "relationship": asks about structure ("what uses PaymentService", "depends on")
- "fuzzy": likely misspelled, needs approximate matching ("authetnication hanlder")
- "pattern": regex-like or credential-like pattern ("sk-.*", "handle.*Error")
- "mixed": none of the above dominates

Respond with ONLY a JSON object:
{"query_type": "...", "weights": {"dense": 0.0, "sparse": 0.0, "pattern": 0.0, "graph": 0.0}, "reasoning": "...", "detected_identifiers": [], "has_typos": false, "confidence": 0.9}

Weights must be non-negative and sum to 1.0.

Query: %s`

// Classify requests a structured classification from Ollama.
// Malformed output, a non-200 status, or a timeout all return an error so the
// caller can fall back to heuristics.
func (o *OllamaClassifier) Classify(ctx context.Context, queryText string) (*Analysis, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, fmt.Errorf("empty query")
	}

	reqBody := generateRequest{
		Model:  o.config.Model,
		Prompt: fmt.Sprintf(classificationPrompt, queryText),
		Format: "json",
		Stream: false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	url := o.config.Host + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return ParseModelClassification(result.Response)
}

// Available checks if Ollama is reachable.
func (o *OllamaClassifier) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// ParseModelClassification validates raw model output and converts it into an
// Analysis. Weights violating the sum invariant are renormalized rather than
// rejected; an unknown query type or unparseable JSON is an error.
func ParseModelClassification(raw string) (*Analysis, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))

	var mc modelClassification
	if err := json.Unmarshal([]byte(raw), &mc); err != nil {
		return nil, fmt.Errorf("parse classification JSON: %w", err)
	}

	qt := QueryType(strings.ToLower(strings.TrimSpace(mc.QueryType)))
	if !ValidQueryType(qt) {
		return nil, fmt.Errorf("unknown query type %q", mc.QueryType)
	}

	weights := SearchWeights{
		Dense:   mc.Weights[StrategyDense],
		Sparse:  mc.Weights[StrategySparse],
		Pattern: mc.Weights[StrategyPattern],
		Graph:   mc.Weights[StrategyGraph],
	}
	if weights.Dense < 0 || weights.Sparse < 0 || weights.Pattern < 0 || weights.Graph < 0 {
		return nil, fmt.Errorf("negative weight in model output")
	}
	weights = weights.Normalize()

	confidence := 0.9
	if mc.Confidence != nil {
		confidence = clamp01(*mc.Confidence)
	}

	hasTypos := false
	if mc.HasTypos != nil {
		hasTypos = *mc.HasTypos
	}

	return &Analysis{
		QueryType:           qt,
		Weights:             weights,
		Reasoning:           mc.Reasoning,
		DetectedIdentifiers: mc.DetectedIdentifiers,
		HasTypos:            hasTypos,
		Confidence:          confidence,
	}, nil
}

// stripCodeFence removes a surrounding markdown code fence, which smaller
// models emit even when asked for bare JSON.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
