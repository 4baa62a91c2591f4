package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clipseek/clipseek/internal/models"
)

const promptTemplate = `Summarize the following video transcript in 5-6 concise bullet points:

Transcript:
%s`

// OllamaClient summarizes text through an Ollama generate endpoint.
// Any transport or non-success outcome surfaces as
// ErrSummarizationFailed with no partial output.
type OllamaClient struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaClient creates a client for the generate endpoint at url
// (e.g. http://localhost:11434/api/generate) using the given model.
func NewOllamaClient(url, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize sends the transcript to the generation service and returns
// the trimmed summary.
func (c *OllamaClient) Summarize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: fmt.Sprintf(promptTemplate, text),
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", models.ErrSummarizationFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSummarizationFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", models.ErrSummarizationFailed, resp.StatusCode, msg)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrSummarizationFailed, err)
	}
	summary := strings.TrimSpace(out.Response)
	if summary == "" {
		return "", fmt.Errorf("%w: empty response", models.ErrSummarizationFailed)
	}
	return summary, nil
}
