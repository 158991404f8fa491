package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"goodnews-bot/model"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash-lite"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
)

// Gemini classifies headlines by prompting the Gemini API for a JSON verdict.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// GeminiOption configures a Gemini classifier.
type GeminiOption func(*Gemini)

// WithGeminiModel sets the Gemini model to use.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiBaseURL sets a custom base URL (for testing).
func WithGeminiBaseURL(url string) GeminiOption {
	return func(g *Gemini) {
		if url != "" {
			g.baseURL = url
		}
	}
}

// WithGeminiTimeout sets the HTTP client timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) {
		g.httpClient.Timeout = d
	}
}

// NewGemini creates a Gemini-backed classifier.
func NewGemini(apiKey string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:     apiKey,
		model:      defaultGeminiModel,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify implements Classifier.
func (g *Gemini) Classify(ctx context.Context, text string) (model.Sentiment, error) {
	req := generateRequest{
		Contents:         []content{{Parts: []part{{Text: fmt.Sprintf(verdictPrompt, text)}}}},
		GenerationConfig: generationConfig{ResponseMIMEType: "application/json"},
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	if err := postJSON(ctx, g.httpClient, url, map[string]string{"x-goog-api-key": g.apiKey}, req, &resp); err != nil {
		return model.Sentiment{}, err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return model.Sentiment{}, fmt.Errorf("empty response")
	}
	return parseVerdict(resp.Candidates[0].Content.Parts[0].Text)
}

const verdictPrompt = `Classify the sentiment of the following news headline as POSITIVE or NEGATIVE and give your confidence between 0 and 1.

Headline: %s

Respond with JSON only, in this exact format:
{"label": "POSITIVE", "confidence": 0.93}`

// parseVerdict decodes the model's JSON answer. Some models still wrap it in
// a markdown fence despite the JSON response type.
func parseVerdict(text string) (model.Sentiment, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
	}

	var v struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return model.Sentiment{}, fmt.Errorf("parse verdict: %w", err)
	}

	label, err := ParseLabel(v.Label)
	if err != nil {
		return model.Sentiment{}, err
	}
	return model.Sentiment{Label: label, Confidence: v.Confidence}, nil
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}
