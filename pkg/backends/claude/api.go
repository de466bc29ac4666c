package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/pkg/errors"
)

const defaultAPIVersion = "2023-06-01"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type MessageRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type MessageResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Content    []Content `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason,omitempty"`
	Usage      Usage     `json:"usage"`
}

// Text joins the text blocks of the response.
func (r *MessageResponse) Text() string {
	parts := []string{}
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "")
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
}

func NewClient(httpClient *http.Client, apiKey string, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIVersion: defaultAPIVersion,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

// SendMessage posts one Messages API request. Failures are returned as *backends.Error.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, backends.NewError(backends.KindClientFault, 0, "", errors.Wrap(err, "could not marshal request"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, backends.NewError(backends.KindClientFault, 0, "", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, backends.NewError(backends.KindServerFault, 0, "", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backends.NewError(backends.KindServerFault, resp.StatusCode, "", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		msg := http.StatusText(resp.StatusCode)
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			msg = errorResp.Error.Message
		}
		return nil, backends.FromStatus(resp.StatusCode, string(respBody), errors.New(msg))
	}

	var ret MessageResponse
	if err := json.Unmarshal(respBody, &ret); err != nil {
		return nil, backends.NewError(backends.KindMalformedResponse, resp.StatusCode, string(respBody),
			errors.Wrap(err, "could not decode claude response"))
	}
	return &ret, nil
}
