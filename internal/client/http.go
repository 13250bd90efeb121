package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
)

const (
	SessionTokenHeader = "X-Session-Token"
	defaultTimeout     = 15 * time.Second
)

type httpTransport struct {
	baseURL string
	wsURL   string
	client  *http.Client
}

func newHTTPTransport(baseURL, wsURL string, hc *http.Client) httpTransport {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return httpTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		wsURL:   strings.TrimRight(wsURL, "/"),
		client:  hc,
	}
}

func (t httpTransport) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return &Error{Code: CodeInternal, Message: "backend unreachable", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	return &Error{
		Code:    codeForStatus(res.StatusCode),
		Message: apiErr.Message,
		Err:     fmt.Errorf("http %d", res.StatusCode),
	}
}

// HTTPVisitor talks to the public API with the session token header.
type HTTPVisitor struct {
	t httpTransport
}

// NewHTTPVisitor takes the public API base (".../api/public/v1") and the websocket base
// (".../api/ws/v1"). A nil client gets a default with a timeout.
func NewHTTPVisitor(baseURL, wsURL string, hc *http.Client) *HTTPVisitor {
	return &HTTPVisitor{t: newHTTPTransport(baseURL, wsURL, hc)}
}

func tokenHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set(SessionTokenHeader, token)
	}
	return h
}

func (v *HTTPVisitor) GetSessionByToken(ctx context.Context, token string) (*dto.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	var res dto.CurrentSessionResponse
	if err := v.t.do(ctx, http.MethodGet, "/sessions/current", tokenHeader(token), nil, &res); err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (v *HTTPVisitor) GetOrCreateSession(ctx context.Context, token string, req dto.CreateSessionRequest) (dto.CreateSessionResponse, error) {
	var res dto.CreateSessionResponse
	err := v.t.do(ctx, http.MethodPost, "/sessions", tokenHeader(token), req, &res)
	return res, err
}

func (v *HTTPVisitor) ListMessages(ctx context.Context, token string) ([]dto.Message, error) {
	var res dto.ListMessagesResponse
	if err := v.t.do(ctx, http.MethodGet, "/sessions/current/messages", tokenHeader(token), nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (v *HTTPVisitor) AppendMessage(ctx context.Context, token, text string) (dto.Message, error) {
	var res dto.MessageResponse
	err := v.t.do(ctx, http.MethodPost, "/sessions/current/messages", tokenHeader(token), dto.PostMessageRequest{Message: text}, &res)
	return res.Message, err
}

func (v *HTTPVisitor) MarkRead(ctx context.Context, token string) (int, error) {
	var res dto.MarkReadResponse
	err := v.t.do(ctx, http.MethodPost, "/sessions/current/read", tokenHeader(token), nil, &res)
	return res.Updated, err
}

func (v *HTTPVisitor) Subscribe(ctx context.Context, token, sessionID string, handler Handler) (Subscription, error) {
	q := url.Values{"token": {token}}
	return dialSubscription(ctx, v.t.wsURL+"/sessions/"+url.PathEscape(sessionID)+"?"+q.Encode(), handler)
}

// HTTPAdmin talks to the admin API with a bearer access token.
type HTTPAdmin struct {
	t           httpTransport
	accessToken string
}

func NewHTTPAdmin(baseURL, wsURL, accessToken string, hc *http.Client) *HTTPAdmin {
	return &HTTPAdmin{t: newHTTPTransport(baseURL, wsURL, hc), accessToken: accessToken}
}

// Login exchanges admin credentials for tokens.
func Login(ctx context.Context, baseURL, email, password string, hc *http.Client) (dto.AuthResponse, error) {
	var res dto.AuthResponse
	t := newHTTPTransport(baseURL, "", hc)
	err := t.do(ctx, http.MethodPost, "/auth/login", nil, dto.LoginRequest{Email: email, Password: password}, &res)
	return res, err
}

func (a *HTTPAdmin) auth() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.accessToken)
	return h
}

func sessionPath(sessionID string) string {
	return "/sessions/" + url.PathEscape(sessionID)
}

func (a *HTTPAdmin) ListSessions(ctx context.Context, status model.SessionStatus, limit int) ([]dto.SessionSummary, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res dto.ListSessionsResponse
	if err := a.t.do(ctx, http.MethodGet, path, a.auth(), nil, &res); err != nil {
		return nil, err
	}
	return res.Sessions, nil
}

func (a *HTTPAdmin) GetSession(ctx context.Context, sessionID string) (dto.SessionSummary, error) {
	var res dto.SessionResponse
	err := a.t.do(ctx, http.MethodGet, sessionPath(sessionID), a.auth(), nil, &res)
	return res.Session, err
}

func (a *HTTPAdmin) ListSessionMessages(ctx context.Context, sessionID string) ([]dto.Message, error) {
	var res dto.ListMessagesResponse
	if err := a.t.do(ctx, http.MethodGet, sessionPath(sessionID)+"/messages", a.auth(), nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (a *HTTPAdmin) AppendAdminMessage(ctx context.Context, sessionID, text string) (dto.Message, error) {
	var res dto.MessageResponse
	err := a.t.do(ctx, http.MethodPost, sessionPath(sessionID)+"/messages", a.auth(), dto.PostMessageRequest{Message: text}, &res)
	return res.Message, err
}

func (a *HTTPAdmin) MarkRead(ctx context.Context, sessionID string) (int, error) {
	var res dto.MarkReadResponse
	err := a.t.do(ctx, http.MethodPost, sessionPath(sessionID)+"/read", a.auth(), nil, &res)
	return res.Updated, err
}

func (a *HTTPAdmin) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) (dto.Session, error) {
	var res dto.SessionResponse
	err := a.t.do(ctx, http.MethodPatch, sessionPath(sessionID), a.auth(), dto.UpdateSessionRequest{Status: status}, &res)
	return res.Session.Session, err
}

func (a *HTTPAdmin) DeleteSession(ctx context.Context, sessionID string) error {
	return a.t.do(ctx, http.MethodDelete, sessionPath(sessionID), a.auth(), nil, nil)
}

func (a *HTTPAdmin) Subscribe(ctx context.Context, sessionID string, handler Handler) (Subscription, error) {
	q := url.Values{"role": {"admin"}, "token": {a.accessToken}}
	return dialSubscription(ctx, a.t.wsURL+sessionPath(sessionID)+"?"+q.Encode(), handler)
}

func (a *HTTPAdmin) SubscribeAll(ctx context.Context, handler Handler) (Subscription, error) {
	q := url.Values{"token": {a.accessToken}}
	return dialSubscription(ctx, a.t.wsURL+"/sessions?"+q.Encode(), handler)
}
