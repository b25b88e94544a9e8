package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the development backend. Every call is best-effort from
// the game's point of view; callers decide whether to warn or queue.
type Client struct {
	BaseURL      string
	HTTP         *http.Client
	AnalyticsKey string
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type LeaderboardRow struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

type ECPMRecord struct {
	ID         string    `json:"id"`
	SDK        string    `json:"sdk"`
	Value      float64   `json:"value"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	var out struct {
		Leaderboard []LeaderboardRow `json:"leaderboard"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/leaderboard", nil, &out)
	return out.Leaderboard, err
}

func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out, err
}

func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var out struct {
		Logs []string `json:"logs"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/logs", nil, &out)
	return out.Logs, err
}

func (c *Client) ECPMHistory(ctx context.Context) ([]ECPMRecord, error) {
	var out struct {
		History []ECPMRecord `json:"history"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/api/ecpm-history", nil, &out)
	return out.History, err
}

// Post sends body and discards the response payload.
func (c *Client) Post(ctx context.Context, path string, body any) error {
	return c.jsonRequest(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AnalyticsKey != "" {
		req.Header.Set("X-Analytics-Key", c.AnalyticsKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
