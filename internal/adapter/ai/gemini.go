package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codequery-ai/codequery/internal/port"
)

const (
	geminiDefaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultEmbeddingModel = "text-embedding-004"
	geminiDefaultChatModel      = "gemini-2.0-flash"

	// Gemini distinguishes indexing embeddings from search embeddings.
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"

	generationTemperature = 0.2
)

// Gemini talks to the Google Generative Language REST API.
type Gemini struct {
	baseURL        string
	apiKey         string
	embeddingModel string
	chatModel      string
	client         *http.Client
}

// NewGemini returns a Gemini provider. Empty baseURL and model names fall
// back to defaults; apiKey is required.
func NewGemini(baseURL, apiKey, embeddingModel, chatModel string) *Gemini {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	if embeddingModel == "" {
		embeddingModel = geminiDefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = geminiDefaultChatModel
	}
	return &Gemini{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
		client:         &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *Gemini) ModelName() string { return g.chatModel }

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// EmbedDocuments embeds texts in document-indexing mode via a single
// batchEmbedContents call. The response is positionally aligned with texts.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type embedRequest struct {
		Model    string        `json:"model"`
		Content  geminiContent `json:"content"`
		TaskType string        `json:"taskType"`
	}
	var req struct {
		Requests []embedRequest `json:"requests"`
	}
	model := "models/" + g.embeddingModel
	for _, t := range texts {
		req.Requests = append(req.Requests, embedRequest{
			Model:    model,
			Content:  geminiContent{Parts: []geminiPart{{Text: t}}},
			TaskType: taskRetrievalDocument,
		})
	}

	var resp struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := g.post(ctx, model+":batchEmbedContents", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query in query mode.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model := "models/" + g.embeddingModel
	req := struct {
		Model    string        `json:"model"`
		Content  geminiContent `json:"content"`
		TaskType string        `json:"taskType"`
	}{
		Model:    model,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: taskRetrievalQuery,
	}

	var resp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := g.post(ctx, model+":embedContent", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini: empty query embedding")
	}
	return resp.Embedding.Values, nil
}

// Generate produces a completion for prompt with a low, answer-focused
// temperature.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	req := struct {
		Contents         []geminiContent `json:"contents"`
		GenerationConfig struct {
			Temperature float64 `json:"temperature"`
		} `json:"generationConfig"`
	}{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	req.GenerationConfig.Temperature = generationTemperature

	var resp struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := g.post(ctx, "models/"+g.chatModel+":generateContent", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty completion")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func (g *Gemini) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := g.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("call gemini %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gemini %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

var _ port.AIProvider = (*Gemini)(nil)
