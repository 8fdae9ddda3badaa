package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-session-engine/internal/domain"
)

const defaultClientTimeout = 10 * time.Second

// Client is the remote authority. It satisfies engine.Authority so a terminal
// or test client can run the engine against a server.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: defaultClientTimeout,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) BootstrapSession(ctx context.Context, userID string) (domain.Bootstrap, error) {
	var boot domain.Bootstrap
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(userID)+"/bootstrap", nil, &boot)
	return boot, err
}

func (c *Client) UpdateProgress(ctx context.Context, update domain.ProgressUpdate) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(update.UserID)+"/progress", update, nil)
}

func (c *Client) FinalizeSession(ctx context.Context, userID string, score domain.Score) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(userID)+"/finalize", score, nil)
}

func (c *Client) AbortSession(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(userID)+"/abort", nil, nil)
}

func (c *Client) GetCurrentRound(ctx context.Context) (*domain.Round, error) {
	var res roundResponse
	if err := c.do(ctx, http.MethodGet, "/v1/rounds/current", nil, &res); err != nil {
		return nil, err
	}
	return res.Round, nil
}

func (c *Client) JoinRound(ctx context.Context, roundID, userID string) (domain.JoinResult, error) {
	var res domain.JoinResult
	err := c.do(ctx, http.MethodPost, "/v1/rounds/"+url.PathEscape(roundID)+"/join", joinRequest{UserID: userID}, &res)
	return res, err
}

func (c *Client) GetCreditBalance(ctx context.Context, userID string) (int, error) {
	var res balanceResponse
	err := c.do(ctx, http.MethodGet, "/v1/credits/"+url.PathEscape(userID), nil, &res)
	return res.Balance, err
}

func (c *Client) GrantCredits(ctx context.Context, userID string, amount int) (int, error) {
	var res balanceResponse
	err := c.do(ctx, http.MethodPost, "/v1/credits/"+url.PathEscape(userID)+"/grant", grantRequest{Amount: amount}, &res)
	return res.Balance, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else if method == http.MethodPost {
		body = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, responseBody)
	}
	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var res errorResponse
	if err := json.Unmarshal(body, &res); err == nil && res.Code != "" {
		for _, ec := range errorCodes {
			if ec.code == res.Code {
				return fmt.Errorf("%w (status %d)", ec.err, status)
			}
		}
	}
	msg := res.Error
	if msg == "" {
		msg = string(body)
	}
	return fmt.Errorf("API returned status code: %d, response: %s", status, msg)
}
