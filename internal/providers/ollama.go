package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaProvider supports local, free completions and embeddings via Ollama.
type OllamaProvider struct {
	alias      string
	baseURL    string
	chatModel  string
	embedModel string
	client     *http.Client
}

func NewOllamaProvider(alias string) *OllamaProvider {
	baseURL := strings.TrimSpace(os.Getenv("LITCHAT_OLLAMA_BASE_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	chatModel := strings.TrimSpace(os.Getenv("LITCHAT_OLLAMA_CHAT_MODEL"))
	if chatModel == "" {
		chatModel = "llama3.1"
	}
	embedModel := strings.TrimSpace(os.Getenv("LITCHAT_OLLAMA_EMBED_MODEL"))
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &OllamaProvider{
		alias:      alias,
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		client:     &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.embedModel, Key: o.alias}
	out := make([][]float32, 0, len(req.Inputs))
	for _, text := range req.Inputs {
		payload, _ := json.Marshal(map[string]any{"model": o.embedModel, "prompt": text})
		httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(payload))
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := o.client.Do(httpReq)
		if err != nil {
			return nil, info, fmt.Errorf("ollama embedding request failed: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, info, fmt.Errorf("ollama embedding error %d: %s", resp.StatusCode, string(body))
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, info, fmt.Errorf("decode ollama embedding response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return nil, info, fmt.Errorf("ollama returned empty embedding")
		}
		out = append(out, matchDimension(parsed.Embedding, req.Dimension))
	}
	return out, info, nil
}

func (o *OllamaProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.chatModel, Key: o.alias}
	payload, _ := json.Marshal(map[string]any{
		"model":  o.chatModel,
		"prompt": flattenPrompt(req),
		"stream": false,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return CompleteResponse{}, info, fmt.Errorf("ollama generate request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return CompleteResponse{}, info, fmt.Errorf("ollama generate error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Response        string `json:"response"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CompleteResponse{}, info, fmt.Errorf("decode ollama generate response: %w", err)
	}
	return CompleteResponse{
		Text:             parsed.Response,
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
	}, info, nil
}

func (o *OllamaProvider) Stream(ctx context.Context, req CompleteRequest) (<-chan Fragment, ProviderInfo, error) {
	info := ProviderInfo{Name: "ollama", Model: o.chatModel, Key: o.alias}
	payload, _ := json.Marshal(map[string]any{
		"model":  o.chatModel,
		"prompt": flattenPrompt(req),
		"stream": true,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{}).Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("ollama stream request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, info, fmt.Errorf("ollama stream error %d: %s", resp.StatusCode, string(body))
	}
	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var event struct {
				Response string `json:"response"`
				Done     bool   `json:"done"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
				continue
			}
			if event.Response != "" {
				if !emitFragment(ctx, out, Fragment{Text: event.Response}) {
					return
				}
			}
			if event.Done {
				emitFragment(ctx, out, Fragment{Done: true})
				return
			}
		}
		emitFragment(ctx, out, Fragment{Done: true, Err: ctx.Err()})
	}()
	return out, info, nil
}

func flattenPrompt(req CompleteRequest) string {
	parts := make([]string, 0, 3)
	if req.System != "" {
		parts = append(parts, req.System)
	}
	parts = append(parts, req.Prompt)
	if len(req.Context) > 0 {
		parts = append(parts, "Context:\n"+strings.Join(req.Context, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}

func matchDimension(v []float32, target int) []float32 {
	if target <= 0 || len(v) == target {
		return v
	}
	if len(v) > target {
		return v[:target]
	}
	out := make([]float32, target)
	copy(out, v)
	return out
}
