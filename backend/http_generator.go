package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recipe-gen/generation"
)

// HTTPGenerator delegates generation to a remote text-generation server
// speaking the {"inputs", "parameters"} -> [{"generated_text"}] contract
type HTTPGenerator struct {
	endpoint   string
	httpClient *http.Client
}

type generateParameters struct {
	MaxNewTokens       int     `json:"max_new_tokens"`
	NumReturnSequences int     `json:"num_return_sequences"`
	DoSample           bool    `json:"do_sample"`
	TopK               int     `json:"top_k,omitempty"`
	TopP               float64 `json:"top_p"`
	Temperature        float64 `json:"temperature"`
	EOSTokenID         int     `json:"eos_token_id"`
	PadTokenID         int     `json:"pad_token_id"`
	ReturnFullText     bool    `json:"return_full_text"`
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

// NewHTTPGenerator creates a client for serverURL
func NewHTTPGenerator(serverURL string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPGenerator{
		endpoint: strings.TrimRight(serverURL, "/") + "/generate",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate posts the prompt and returns the server's generations, each
// starting with the prompt
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, params *generation.SamplingParams) ([]generation.Output, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling params: %w", err)
	}

	reqBody, err := json.Marshal(&generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:       params.MaxNewTokens,
			NumReturnSequences: params.NumReturnSequences,
			DoSample:           params.DoSample,
			TopK:               params.TopK,
			TopP:               params.TopP,
			Temperature:        params.Temperature,
			EOSTokenID:         params.EOSTokenID,
			PadTokenID:         params.PadTokenID,
			ReturnFullText:     true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: generate request failed: %w", generation.ErrGenerationFailed, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read generate response: %w", generation.ErrGenerationFailed, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: generate request failed: status=%d body=%s",
			generation.ErrGenerationFailed, httpResp.StatusCode, truncate(string(body), 200))
	}

	outputs, err := decodeGenerations(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode generate response: %w", generation.ErrGenerationFailed, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: server returned no generations", generation.ErrGenerationFailed)
	}

	for i := range outputs {
		// some servers return only the continuation
		if !strings.HasPrefix(outputs[i].GeneratedText, prompt) {
			outputs[i].GeneratedText = prompt + outputs[i].GeneratedText
		}
	}
	return outputs, nil
}

// decodeGenerations accepts a list of generations or a single object
func decodeGenerations(body []byte) ([]generation.Output, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one generation.Output
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		return []generation.Output{one}, nil
	}

	var many []generation.Output
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close drops idle connections
func (g *HTTPGenerator) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}
