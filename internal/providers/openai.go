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

// OpenAIProvider uses standard OpenAI REST APIs when keys are configured.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveOpenAIKey(keyName),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

const (
	openAIChatModel  = "gpt-4o-mini"
	openAIEmbedModel = "text-embedding-3-small"
)

func (o *OpenAIProvider) info(model string) ProviderInfo {
	return ProviderInfo{Name: "openai", Model: model, Key: o.keyName}
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if o.apiKey == "" {
		return nil, o.info(openAIEmbedModel), fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload, _ := json.Marshal(map[string]any{"model": openAIEmbedModel, "input": req.Inputs})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.info(openAIEmbedModel), fmt.Errorf("openai embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, o.info(openAIEmbedModel), fmt.Errorf("openai embedding error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, o.info(openAIEmbedModel), fmt.Errorf("decode embedding response: %w", err)
	}
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.Embedding)
	}
	return out, o.info(openAIEmbedModel), nil
}

func (o *OpenAIProvider) Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, ProviderInfo, error) {
	if o.apiKey == "" {
		return CompleteResponse{}, o.info(openAIChatModel), fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload, _ := json.Marshal(chatPayload(req, false))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return CompleteResponse{}, o.info(openAIChatModel), fmt.Errorf("openai complete request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return CompleteResponse{}, o.info(openAIChatModel), fmt.Errorf("openai complete error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return CompleteResponse{}, o.info(openAIChatModel), fmt.Errorf("decode complete response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return CompleteResponse{}, o.info(openAIChatModel), fmt.Errorf("openai returned empty choices")
	}
	return CompleteResponse{
		Text:             parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, o.info(openAIChatModel), nil
}

func (o *OpenAIProvider) Stream(ctx context.Context, req CompleteRequest) (<-chan Fragment, ProviderInfo, error) {
	if o.apiKey == "" {
		return nil, o.info(openAIChatModel), fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload, _ := json.Marshal(chatPayload(req, true))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would cut long streams short.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, o.info(openAIChatModel), fmt.Errorf("openai stream request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, o.info(openAIChatModel), fmt.Errorf("openai stream error %d: %s", resp.StatusCode, string(body))
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				emitFragment(ctx, out, Fragment{Done: true})
				return
			}
			var event struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			if len(event.Choices) == 0 || event.Choices[0].Delta.Content == "" {
				continue
			}
			if !emitFragment(ctx, out, Fragment{Text: event.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			emitFragment(ctx, out, Fragment{Done: true, Err: fmt.Errorf("read stream: %w", err)})
			return
		}
		emitFragment(ctx, out, Fragment{Done: true, Err: ctx.Err()})
	}()
	return out, o.info(openAIChatModel), nil
}

func emitFragment(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func chatPayload(req CompleteRequest, stream bool) map[string]any {
	system := req.System
	if system == "" {
		system = "You are a scholarly research assistant. Use concise, citation-grounded responses."
	}
	prompt := req.Prompt
	if len(req.Context) > 0 {
		prompt = prompt + "\n\nContext:\n" + strings.Join(req.Context, "\n\n")
	}
	payload := map[string]any{
		"model": openAIChatModel,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		k := os.Getenv("LITCHAT_OPENAI_KEY_" + strings.ToUpper(alias))
		if k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}
