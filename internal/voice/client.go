// Package voice starts outbound AI calls through the Vapi REST API.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/phone"
)

const defaultBaseURL = "https://api.vapi.ai"

type Client struct {
	baseURL       string
	apiKey        string
	assistantID   string
	phoneNumberID string
	http          *http.Client
	log           *logger.Logger
}

type customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type assistantOverrides struct {
	FirstMessage   string            `json:"firstMessage,omitempty"`
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

type createCallRequest struct {
	AssistantID        string              `json:"assistantId"`
	PhoneNumberID      string              `json:"phoneNumberId"`
	Customer           customer            `json:"customer"`
	AssistantOverrides *assistantOverrides `json:"assistantOverrides,omitempty"`
}

type createCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CallRequest describes one outbound call.
type CallRequest struct {
	PhoneNumber  string
	Name         string
	FirstMessage string
	Variables    map[string]string
}

// NewClient returns nil when Vapi is not configured.
func NewClient(cfg config.VoiceConfig, log *logger.Logger) *Client {
	if !cfg.IsVoiceEnabled() {
		return nil
	}
	return &Client{
		baseURL:       defaultBaseURL,
		apiKey:        cfg.GetVapiAPIKey(),
		assistantID:   cfg.GetVapiAssistantID(),
		phoneNumberID: cfg.GetVapiPhoneNumberID(),
		http:          &http.Client{Timeout: 20 * time.Second},
		log:           log,
	}
}

// WithBaseURL points the client at another API host.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// StartCall places the call and returns the provider call id.
func (c *Client) StartCall(ctx context.Context, in CallRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("voice provider not configured")
	}

	payload := createCallRequest{
		AssistantID:   c.assistantID,
		PhoneNumberID: c.phoneNumberID,
		Customer: customer{
			Number: phone.NormalizeE164(in.PhoneNumber),
			Name:   in.Name,
		},
	}
	if in.FirstMessage != "" || len(in.Variables) > 0 {
		payload.AssistantOverrides = &assistantOverrides{
			FirstMessage:   in.FirstMessage,
			VariableValues: in.Variables,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal vapi payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("vapi request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read vapi response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("vapi returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var call createCallResponse
	if err := json.Unmarshal(data, &call); err != nil {
		return "", fmt.Errorf("decode vapi response: %w", err)
	}

	c.log.Info("ai call started via vapi", "callId", call.ID, "status", call.Status)
	return call.ID, nil
}
