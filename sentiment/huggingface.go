package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"goodnews-bot/model"
)

const (
	defaultHFModel   = "distilbert/distilbert-base-uncased-finetuned-sst-2-english"
	defaultHFBaseURL = "https://router.huggingface.co/hf-inference"
)

// HuggingFace classifies text with a hosted text-classification model.
type HuggingFace struct {
	apiToken   string
	model      string
	baseURL    string
	httpClient *http.Client
}

// HFOption configures a HuggingFace classifier.
type HFOption func(*HuggingFace)

// WithHFModel sets the model id.
func WithHFModel(model string) HFOption {
	return func(h *HuggingFace) {
		if model != "" {
			h.model = model
		}
	}
}

// WithHFBaseURL sets a custom base URL (for testing).
func WithHFBaseURL(url string) HFOption {
	return func(h *HuggingFace) {
		if url != "" {
			h.baseURL = url
		}
	}
}

// WithHFTimeout sets the HTTP client timeout.
func WithHFTimeout(d time.Duration) HFOption {
	return func(h *HuggingFace) {
		h.httpClient.Timeout = d
	}
}

// NewHuggingFace creates a Hugging Face inference classifier.
func NewHuggingFace(apiToken string, opts ...HFOption) *HuggingFace {
	h := &HuggingFace{
		apiToken:   apiToken,
		model:      defaultHFModel,
		baseURL:    defaultHFBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type hfRequest struct {
	Inputs string `json:"inputs"`
}

type hfLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify implements Classifier.
func (h *HuggingFace) Classify(ctx context.Context, text string) (model.Sentiment, error) {
	header := map[string]string{}
	if h.apiToken != "" {
		header["Authorization"] = "Bearer " + h.apiToken
	}

	var raw json.RawMessage
	url := fmt.Sprintf("%s/models/%s", h.baseURL, h.model)
	if err := postJSON(ctx, h.httpClient, url, header, hfRequest{Inputs: text}, &raw); err != nil {
		return model.Sentiment{}, err
	}
	return parseHFResponse(raw)
}

// parseHFResponse accepts both [[{label,score}...]] and [{label,score}...]
// and returns the highest-scoring label.
func parseHFResponse(raw []byte) (model.Sentiment, error) {
	var labels []hfLabel

	var nested [][]hfLabel
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) > 0 {
			labels = nested[0]
		}
	} else if err := json.Unmarshal(raw, &labels); err != nil {
		return model.Sentiment{}, fmt.Errorf("decode response: %w", err)
	}

	if len(labels) == 0 {
		return model.Sentiment{}, fmt.Errorf("no labels in response")
	}

	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}

	label, err := ParseLabel(best.Label)
	if err != nil {
		return model.Sentiment{}, err
	}

	return model.Sentiment{Label: label, Confidence: best.Score}, nil
}
