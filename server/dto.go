package server

import "recipe-gen/recipe"

// GenerateRequest is the JSON body of POST /api/v1/recipes/generate
type GenerateRequest struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
}

// GenerateResponse is a successful generation
type GenerateResponse struct {
	Prompt    string          `json:"prompt"`
	Recipe    string          `json:"recipe"`
	Sections  recipe.Sections `json:"sections"`
	ElapsedMS int64           `json:"elapsed_ms"`
	RequestID string          `json:"request_id"`
}

// ErrorResponse is returned for every failed API call
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse reports the model state
type HealthResponse struct {
	Status      string `json:"status"`
	Backend     string `json:"backend,omitempty"`
	Device      string `json:"device,omitempty"`
	ModelDir    string `json:"model_dir,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}
