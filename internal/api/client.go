// Package api is the client SDK for the tracker's HTTP surface, used by
// the uploader CLI and any other Go-side uploader.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"replay-tracker/internal/constants"

	"github.com/valyala/fasthttp"
)

type Client struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.ClientAPITimeout,
			WriteTimeout:        constants.ClientAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

type GameDetail struct {
	Index       int    `json:"index"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint,omitempty"`
	GameID      string `json:"game_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type UploadResult struct {
	Status     string       `json:"status"`
	NewGames   int          `json:"new_games"`
	Duplicates int          `json:"duplicates"`
	Errors     int          `json:"errors"`
	Details    []GameDetail `json:"details"`
}

type Registration struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

type PlayerStats struct {
	Tag               string  `json:"tag"`
	TotalGames        int     `json:"total_games"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	WinRate           float64 `json:"win_rate"`
	MostUsedCharacter string  `json:"most_used_character"`
}

type uploadBody struct {
	ClientID string            `json:"client_id"`
	Games    []json.RawMessage `json:"games"`
}

type registerBody struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

func (c *Client) Register(ctx context.Context, hostname, platform, version string) (*Registration, error) {
	return doRequest[Registration](ctx, c, fasthttp.MethodPost, "/api/clients/register",
		registerBody{Hostname: hostname, Platform: platform, Version: version})
}

func (c *Client) UploadGames(ctx context.Context, clientID string, games []json.RawMessage) (*UploadResult, error) {
	return doRequest[UploadResult](ctx, c, fasthttp.MethodPost, "/api/games/upload",
		uploadBody{ClientID: clientID, Games: games})
}

func (c *Client) GetPlayerStats(ctx context.Context, tag string) (*PlayerStats, error) {
	path := "/api/players/" + url.PathEscape(tag) + "/stats"
	return doRequest[PlayerStats](ctx, c, fasthttp.MethodGet, path, nil)
}

func doRequest[T any](ctx context.Context, client *Client, method, path string, body any) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path)
	req.Header.SetMethod(method)
	if client.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+client.apiKey)
	}

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(constants.ClientAPITimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := client.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}

	if resp.StatusCode() >= fasthttp.StatusBadRequest {
		return nil, fmt.Errorf("request to %s failed with status %d: %s", path, resp.StatusCode(), resp.Body())
	}

	var out T
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return &out, nil
}
