// Package api is the HTTP client for the arena server.
//
// Errors returned by the server carry a wire code that is mapped back to the
// sentinel errors in internal/common, so callers can use errors.Is exactly as
// the server-side code does. Transport failures are wrapped without a
// sentinel.
package api

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

	"codearena/internal/app/service"
	"codearena/internal/common"
	"codearena/internal/domain/model"
)

const DefaultTimeout = 30 * time.Second

// StatusError is returned for error responses that carry no known code.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body common.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	if sentinel := common.ErrorFromCode(body.Code); sentinel != nil {
		return fmt.Errorf("%s: %w", body.Error, sentinel)
	}
	return &StatusError{Status: resp.StatusCode, Message: body.Error}
}

func roomPath(code string) string {
	return "/rooms/" + url.PathEscape(model.CanonicalRoomCode(code))
}

func (c *Client) IssueToken(ctx context.Context, req service.TokenRequest) (*service.AuthResponse, error) {
	var resp service.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/token", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]*model.Room, error) {
	var rooms []*model.Room
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) CreateRoom(ctx context.Context, req service.CreateRoomRequest) (*model.Room, error) {
	var room model.Room
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	var room model.Room
	if err := c.do(ctx, http.MethodGet, roomPath(code), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) JoinRoom(ctx context.Context, code, password string) (*model.Room, error) {
	var room model.Room
	if err := c.do(ctx, http.MethodPost, roomPath(code)+"/join", service.JoinRoomRequest{Password: password}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) LeaveRoom(ctx context.Context, code string) (*model.Room, error) {
	var room model.Room
	if err := c.do(ctx, http.MethodPost, roomPath(code)+"/leave", nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) DeleteRoom(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, roomPath(code), nil, nil)
}

func (c *Client) StartRoom(ctx context.Context, code string) (*model.Game, error) {
	var game model.Game
	if err := c.do(ctx, http.MethodPost, roomPath(code)+"/start", nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (c *Client) GetGame(ctx context.Context, id string) (*model.Game, error) {
	var game model.Game
	if err := c.do(ctx, http.MethodGet, "/games/"+url.PathEscape(id), nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// SubmitGame returns the judge's verdict together with the updated game.
func (c *Client) SubmitGame(ctx context.Context, gameID string, req service.SubmitRequest) (*service.SubmitResponse, error) {
	var resp service.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/games/"+url.PathEscape(gameID)+"/submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Submit(ctx context.Context, gameID, problemID, code string) (*model.Verdict, error) {
	resp, err := c.SubmitGame(ctx, gameID, service.SubmitRequest{ProblemID: problemID, Code: code})
	if err != nil {
		return nil, err
	}
	return resp.Verdict, nil
}

func (c *Client) ListProblems(ctx context.Context, difficulty model.Difficulty) ([]model.Problem, error) {
	path := "/problems"
	if difficulty != "" {
		path += "?" + url.Values{"difficulty": {string(difficulty)}}.Encode()
	}
	var resp struct {
		Problems []model.Problem `json:"problems"`
		Total    int             `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Problems, nil
}

func (c *Client) GetProblem(ctx context.Context, slug string) (*model.Problem, error) {
	var p model.Problem
	if err := c.do(ctx, http.MethodGet, "/problems/"+url.PathEscape(slug), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Judge verifies code against a problem outside any game. It satisfies
// service.Judge so bot matches can use the server's judge remotely.
func (c *Client) Judge(ctx context.Context, req service.JudgeRequest) (*model.Verdict, error) {
	var v model.Verdict
	if err := c.do(ctx, http.MethodPost, "/judge", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
