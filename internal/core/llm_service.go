package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ananyabot/ananya/internal/metrics"
	"github.com/ananyabot/ananya/internal/store"
)

const (
	msgNoInput       = "What was that? I didn't get your message."
	msgNotConfigured = "Sorry, my AI brain is not configured. (Admin: Check GEMINI_API_KEY)"
	msgSafetyBlocked = "I'm sorry, I can't respond to that."
	msgEmptyResponse = "I'm not sure how to respond to that."
	msgBadRequest    = "Sorry, my AI brain had a problem with that request. (Admin: 400 Bad Request)"
	msgPermission    = "Sorry, my AI brain isn't working right now. (Admin: Check Gemini API Key permissions)"

	searchInstruction = "Search and answer: "
)

// Outcome classifies a completion result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoInput
	OutcomeNotConfigured
	OutcomeSafetyBlocked
	OutcomeEmpty
	OutcomeBadRequest
	OutcomePermission
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoInput:
		return "no_input"
	case OutcomeNotConfigured:
		return "not_configured"
	case OutcomeSafetyBlocked:
		return "safety_blocked"
	case OutcomeEmpty:
		return "empty"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomePermission:
		return "permission_denied"
	default:
		return "transient_error"
	}
}

type Image struct {
	MIMEType string
	Data     []byte
}

type CompletionRequest struct {
	Text         string
	History      []store.Turn
	SystemPrompt string
	Image        *Image
	// UseSearch grounds the answer in web search. History is not sent.
	UseSearch bool
}

// Completion is always a reply text; failures are expressed as Outcome.
type Completion struct {
	Text    string
	Outcome Outcome
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) Completion
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// Endpoint overrides the genai service endpoint; empty uses the default.
	Endpoint   string
	HTTPClient *http.Client
}

// LLMService is the Gemini completion client. Conversational calls go
// through genai; search-grounded calls go through the REST endpoint.
type LLMService struct {
	cfg     GeminiConfig
	client  *genai.Client
	rest    *restClient
	metrics *metrics.Metrics
}

// NewLLMService builds the client. A missing API key is not an error: every
// completion then answers with the not-configured text.
func NewLLMService(ctx context.Context, cfg GeminiConfig, m *metrics.Metrics) (*LLMService, error) {
	s := &LLMService{
		cfg:     cfg,
		rest:    newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient),
		metrics: m,
	}
	if cfg.APIKey == "" {
		slog.Warn("GEMINI_API_KEY is not set; completions are disabled")
		return s, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	s.client = client
	return s, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Error("error closing GenAI client", "error", err)
		} else {
			slog.Info("GenAI client closed")
		}
	}
}

// Complete makes exactly one model call and never returns an error: every
// failure is converted into a classified reply text.
func (s *LLMService) Complete(ctx context.Context, req CompletionRequest) Completion {
	start := time.Now()
	res := s.complete(ctx, req)
	s.metrics.RecordCompletion(res.Outcome.String(), time.Since(start))
	return res
}

func (s *LLMService) complete(ctx context.Context, req CompletionRequest) Completion {
	if req.Text == "" && req.Image == nil {
		slog.Warn("completion requested with no text and no image")
		return Completion{Text: msgNoInput, Outcome: OutcomeNoInput}
	}
	if s.cfg.APIKey == "" {
		slog.Error("GEMINI_API_KEY not set")
		return Completion{Text: msgNotConfigured, Outcome: OutcomeNotConfigured}
	}

	var (
		text    string
		blocked bool
		err     error
	)
	if req.UseSearch {
		text, blocked, err = s.groundedCompletion(ctx, req)
	} else {
		text, blocked, err = s.chatCompletion(ctx, req)
	}
	if err != nil {
		slog.Error("gemini request failed", "model", s.cfg.Model, "search", req.UseSearch, "error", err)
	}
	return classifyCompletion(text, blocked, err)
}

func (s *LLMService) chatCompletion(ctx context.Context, req CompletionRequest) (string, bool, error) {
	if s.client == nil {
		return "", false, ErrNotConfigured
	}
	model := s.client.GenerativeModel(s.cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}

	history, err := toGenaiHistory(req.History)
	if err != nil {
		return "", false, err
	}
	chatSession := model.StartChat()
	chatSession.History = history

	// Text first, image second.
	var parts []genai.Part
	if req.Text != "" {
		parts = append(parts, genai.Text(req.Text))
	}
	if req.Image != nil {
		parts = append(parts, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
	}

	resp, err := chatSession.SendMessage(ctx, parts...)
	if err != nil {
		return "", false, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	text, blocked := responseText(resp)
	return text, blocked, nil
}

func (s *LLMService) groundedCompletion(ctx context.Context, req CompletionRequest) (string, bool, error) {
	payload := &generateRequest{
		Contents:          []store.Turn{store.TextTurn(store.RoleUser, searchInstruction+req.Text)},
		SystemInstruction: &store.Turn{Parts: []store.Part{{Text: req.SystemPrompt}}},
		Tools:             []map[string]any{{"google_search": map[string]any{}}},
	}
	var out generateResponse
	if err := s.rest.generateContent(ctx, s.cfg.Model, payload, &out); err != nil {
		return "", false, err
	}
	text, blocked := out.text()
	return text, blocked, nil
}

func toGenaiHistory(turns []store.Turn) ([]*genai.Content, error) {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		content := &genai.Content{Role: t.Role}
		for _, p := range t.Parts {
			switch {
			case p.InlineData != nil:
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("invalid inline data in history: %w", err)
				}
				content.Parts = append(content.Parts, genai.Blob{MIMEType: p.InlineData.MIMEType, Data: data})
			case p.Text != "":
				content.Parts = append(content.Parts, genai.Text(p.Text))
			}
		}
		if len(content.Parts) > 0 {
			history = append(history, content)
		}
	}
	return history, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	candidate := resp.Candidates[0]
	blocked := candidate.FinishReason == genai.FinishReasonSafety
	if candidate.Content == nil {
		return "", blocked
	}
	var responseText strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return responseText.String(), blocked
}

func classifyCompletion(text string, blocked bool, err error) Completion {
	if err != nil {
		var blockedErr *genai.BlockedError
		if errors.As(err, &blockedErr) {
			return Completion{Text: msgSafetyBlocked, Outcome: OutcomeSafetyBlocked}
		}
		if errors.Is(err, ErrNotConfigured) {
			return Completion{Text: msgNotConfigured, Outcome: OutcomeNotConfigured}
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.Code == http.StatusBadRequest:
				return Completion{Text: msgBadRequest, Outcome: OutcomeBadRequest}
			case apiErr.Code == http.StatusForbidden:
				return Completion{Text: msgPermission, Outcome: OutcomePermission}
			case apiErr.Code >= 500:
				return Completion{
					Text:    fmt.Sprintf("Sorry, my AI brain is having problems. (Admin: %d Server Error: %s)", apiErr.Code, apiErr.Message),
					Outcome: OutcomeTransient,
				}
			}
		}
		return Completion{
			Text:    fmt.Sprintf("Sorry, I'm having trouble connecting to my brain. (Error: %v)", err),
			Outcome: OutcomeTransient,
		}
	}

	if strings.TrimSpace(text) == "" {
		if blocked {
			return Completion{Text: msgSafetyBlocked, Outcome: OutcomeSafetyBlocked}
		}
		slog.Warn("gemini returned empty text")
		return Completion{Text: msgEmptyResponse, Outcome: OutcomeEmpty}
	}
	return Completion{Text: text, Outcome: OutcomeOK}
}
