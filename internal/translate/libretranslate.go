package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

// Client communicates with a LibreTranslate-compatible server over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check that Client implements Translator.
var _ Translator = (*Client)(nil)

// NewClient creates a Client targeting the given LibreTranslate base URL.
// apiKey may be empty for servers that do not require one.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// detectRequest is the JSON body for POST /detect.
type detectRequest struct {
	Q      string `json:"q"`
	APIKey string `json:"api_key,omitempty"`
}

// detectResult is one entry of the array returned by POST /detect,
// ordered by confidence descending.
type detectResult struct {
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// Detect returns the ISO-639 tag of the text's language.
func (c *Client) Detect(ctx context.Context, text string) (string, error) {
	var results []detectResult
	if err := c.post(ctx, "/detect", detectRequest{Q: text, APIKey: c.apiKey}, &results); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("detect: empty result: %w", ErrUnavailable)
	}
	return results[0].Language, nil
}

// translateRequest is the JSON body for POST /translate.
type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// translateResponse is the JSON returned by POST /translate.
type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// Translate renders text in the target language. The source language is
// detected first; when it already equals the target the text is returned
// unchanged, so repeated translation into the same language is a no-op and
// never corrupts text through a redundant provider round-trip.
func (c *Client) Translate(ctx context.Context, text, target string) (string, error) {
	source, err := c.Detect(ctx, text)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if source == target {
		return text, nil
	}

	var resp translateResponse
	req := translateRequest{Q: text, Source: source, Target: target, Format: "text", APIKey: c.apiKey}
	if err := c.post(ctx, "/translate", req, &resp); err != nil {
		return "", err
	}
	if resp.TranslatedText == "" {
		return "", fmt.Errorf("translate: empty result: %w", ErrUnavailable)
	}
	return resp.TranslatedText, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %v: %w", path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %w", path, resp.StatusCode, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %v: %w", path, err, ErrUnavailable)
	}
	return nil
}
