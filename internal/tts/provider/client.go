// Package provider implements the client of the remote speech synthesis API.
//
// The wire format follows the Cloud Text-to-Speech REST surface: a JSON
// request describing input text, voice and audio settings, answered by a
// base64 encoded audio payload.
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/text:synthesize"
	apiVoices     = "/v1/voices"
	queryKey      = "key"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Audio encodings understood by the provider.
const (
	EncodingMP3      = "MP3"
	EncodingLinear16 = "LINEAR16"
)

const maxErrorBodyBytes = 64 * 1024

// Static errors.
var (
	ErrTextEmpty     = errors.New("text cannot be empty")
	ErrVoiceEmpty    = errors.New("voice id cannot be empty")
	ErrEmptyAudio    = errors.New("received empty audio data")
	ErrEndpointEmpty = errors.New("provider endpoint cannot be empty")
)

// Request is one synthesis call.
type Request struct {
	Text         string
	VoiceID      string
	LanguageCode string
	SpeakingRate float64
	Pitch        float64
	VolumeGainDB float64
	Encoding     string
	SampleRate   int
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type audioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SpeakingRate    float64 `json:"speakingRate"`
	Pitch           float64 `json:"pitch"`
	VolumeGainDB    float64 `json:"volumeGainDb"`
	SampleRateHertz int     `json:"sampleRateHertz,omitempty"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls the remote synthesis API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewClient creates a client for endpoint; the timeout applies to every call.
func NewClient(endpoint, apiKey string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, ErrEndpointEmpty
	}

	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Synthesize renders req and returns the decoded audio bytes. Failures from
// the remote side are returned as *Error.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	if req.VoiceID == "" {
		return nil, ErrVoiceEmpty
	}

	if req.Encoding == "" {
		req.Encoding = EncodingMP3
	}

	payload := synthesizeRequest{
		Input: synthesisInput{Text: req.Text},
		Voice: voiceSelection{LanguageCode: req.LanguageCode, Name: req.VoiceID},
		AudioConfig: audioConfig{
			AudioEncoding:   req.Encoding,
			SpeakingRate:    req.SpeakingRate,
			Pitch:           req.Pitch,
			VolumeGainDB:    req.VolumeGainDB,
			SampleRateHertz: req.SampleRate,
		},
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(apiSynthesize), bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "request to " + c.endpoint + " failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var decoded synthesizeResponse

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return nil, &Error{Kind: KindOther, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}

	audioData, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, &Error{Kind: KindOther, StatusCode: resp.StatusCode, Message: "malformed audio content", Err: err}
	}

	if len(audioData) == 0 {
		return nil, &Error{Kind: KindOther, StatusCode: resp.StatusCode, Err: ErrEmptyAudio}
	}

	return audioData, nil
}

// HealthCheck verifies that the API answers and accepts the configured key.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(apiVoices), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindUnavailable, Message: "health check failed for " + c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (c *Client) url(path string) string {
	target := c.endpoint + path
	if c.apiKey == "" {
		return target
	}

	return target + "?" + url.Values{queryKey: []string{c.apiKey}}.Encode()
}

// parseErrorResponse decodes the structured error body when present and
// falls back to the raw body otherwise.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var decoded errorResponse

	err := json.Unmarshal(body, &decoded)
	if err != nil || decoded.Error.Message == "" {
		return &Error{
			Kind:       classify(resp.StatusCode, "", string(body)),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return &Error{
		Kind:       classify(resp.StatusCode, decoded.Error.Status, decoded.Error.Message),
		StatusCode: resp.StatusCode,
		Status:     decoded.Error.Status,
		Message:    decoded.Error.Message,
	}
}
