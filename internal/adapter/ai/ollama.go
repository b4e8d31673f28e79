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
	ollamaDefaultBaseURL        = "http://localhost:11434"
	ollamaDefaultEmbeddingModel = "nomic-embed-text"
	ollamaDefaultChatModel      = "qwen2.5-coder:7b"
)

// Ollama talks to a local Ollama server. It makes no distinction between
// document and query embeddings; both go through /api/embed.
type Ollama struct {
	baseURL        string
	embeddingModel string
	chatModel      string
	client         *http.Client
}

// NewOllama returns an Ollama provider. Empty arguments fall back to defaults.
func NewOllama(baseURL, embeddingModel, chatModel string) *Ollama {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if embeddingModel == "" {
		embeddingModel = ollamaDefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = ollamaDefaultChatModel
	}
	return &Ollama{
		baseURL:        strings.TrimRight(baseURL, "/"),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
		client:         &http.Client{Timeout: 300 * time.Second},
	}
}

func (o *Ollama) ModelName() string { return o.chatModel }

func (o *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return o.embed(ctx, texts)
}

func (o *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *Ollama) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{
		Model: o.embeddingModel,
		Input: texts,
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.post(ctx, "/api/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	req := struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream  bool `json:"stream"`
		Options struct {
			Temperature float64 `json:"temperature"`
		} `json:"options"`
	}{
		Model:  o.chatModel,
		Stream: false,
	}
	req.Messages = append(req.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: prompt})
	req.Options.Temperature = generationTemperature

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := o.post(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", fmt.Errorf("ollama: empty completion")
	}
	return resp.Message.Content, nil
}

func (o *Ollama) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("call ollama %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ollama response: %w", err)
	}
	return nil
}

var _ port.AIProvider = (*Ollama)(nil)
