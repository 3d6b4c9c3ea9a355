package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/ananyabot/ananya/internal/store"
)

type SpeechErrorKind int

const (
	SpeechNotConfigured SpeechErrorKind = iota
	SpeechRateLimited
	SpeechUpstream
	SpeechNoAudio
	SpeechTransport
)

// SpeechError is the classified failure of a synthesis call.
type SpeechError struct {
	Kind       SpeechErrorKind
	StatusCode int
	Err        error
}

func (e *SpeechError) Error() string {
	switch e.Kind {
	case SpeechNotConfigured:
		return "speech synthesis not configured"
	case SpeechRateLimited:
		return "speech synthesis rate limited"
	case SpeechUpstream:
		return fmt.Sprintf("speech synthesis failed with status %d: %v", e.StatusCode, e.Err)
	case SpeechNoAudio:
		return "speech synthesis returned no audio"
	default:
		return fmt.Sprintf("speech synthesis request failed: %v", e.Err)
	}
}

func (e *SpeechError) Unwrap() error { return e.Err }

// UserMessage is the reply shown to the user for this failure.
func (e *SpeechError) UserMessage() string {
	switch e.Kind {
	case SpeechNotConfigured:
		return "Sorry, an error occurred: Admin: GEMINI_API_KEY is not configured."
	case SpeechRateLimited:
		return "You're making too many voice requests! Please wait a minute and try again."
	case SpeechUpstream:
		return fmt.Sprintf("Sorry, an error occurred: Gemini TTS API error: %d", e.StatusCode)
	case SpeechNoAudio:
		return "Sorry, I couldn't produce any audio for that. Please try again."
	default:
		return "Sorry, I couldn't reach my voice right now. Please try again later."
	}
}

// Synthesizer turns text into raw mono 16-bit 24kHz PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type SpeechConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type SpeechService struct {
	cfg  SpeechConfig
	rest *restClient
}

func NewSpeechService(cfg SpeechConfig) *SpeechService {
	return &SpeechService{cfg: cfg, rest: newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient)}
}

// Synthesize returns PCM audio or a *SpeechError. Unknown voices fall back
// to DefaultVoice.
func (s *SpeechService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if s.cfg.APIKey == "" {
		slog.Error("GEMINI_API_KEY not set")
		return nil, &SpeechError{Kind: SpeechNotConfigured, Err: ErrNotConfigured}
	}
	voiceName, ok := LookupVoice(voice)
	if !ok {
		voiceName = DefaultVoice
	}

	payload := &generateRequest{
		Contents: []store.Turn{store.TextTurn(store.RoleUser, "Say this in a friendly, female, Hinglish voice: "+text)},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voiceName}},
			},
		},
	}

	var out generateResponse
	if err := s.rest.generateContent(ctx, s.cfg.Model, payload, &out); err != nil {
		slog.Error("gemini TTS request failed", "voice", voiceName, "error", err)
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			if apiErr.Code == http.StatusTooManyRequests {
				return nil, &SpeechError{Kind: SpeechRateLimited, StatusCode: apiErr.Code, Err: err}
			}
			return nil, &SpeechError{Kind: SpeechUpstream, StatusCode: apiErr.Code, Err: err}
		}
		return nil, &SpeechError{Kind: SpeechTransport, Err: err}
	}

	inline := out.inlineData()
	if inline == nil {
		slog.Error("gemini TTS returned no audio data")
		return nil, &SpeechError{Kind: SpeechNoAudio}
	}
	pcm, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return nil, &SpeechError{Kind: SpeechNoAudio, Err: fmt.Errorf("invalid audio payload: %w", err)}
	}
	if len(pcm) == 0 {
		return nil, &SpeechError{Kind: SpeechNoAudio}
	}
	return pcm, nil
}
