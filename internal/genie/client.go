package genie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const apiPrefix = "/api/2.0/genie"

// Config holds the connection settings for a Genie workspace. Host is
// required plus either a personal access token or an OAuth service principal
// (client id + secret).
type Config struct {
	Host         string
	Token        string
	ClientID     string
	ClientSecret string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the Genie REST API of one workspace. It is stateless apart
// from the cached OAuth token; all operations are plain request/response.
type Client struct {
	host string
	auth tokenSource
	http *http.Client
}

// NewClient validates the config and builds a workspace client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("workspace host is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	host := strings.TrimSuffix(cfg.Host, "/")

	var auth tokenSource
	switch {
	case cfg.Token != "":
		auth = staticToken(cfg.Token)
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		auth = &oauthToken{
			tokenURL:     host + "/oidc/v1/token",
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			http:         httpClient,
		}
	default:
		return nil, errors.New("either a token or client id + secret is required")
	}

	return &Client{host: host, auth: auth, http: httpClient}, nil
}

// StartConversation starts a new conversation in a space with an initial
// message and returns that message.
func (c *Client) StartConversation(ctx context.Context, spaceID, content string) (*Message, error) {
	path := fmt.Sprintf("%s/spaces/%s/start-conversation", apiPrefix, url.PathEscape(spaceID))

	var resp struct {
		ConversationID string   `json:"conversation_id"`
		MessageID      string   `json:"message_id"`
		Message        *Message `json:"message"`
	}
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}

	msg := resp.Message
	if msg == nil {
		msg = &Message{Content: content, Status: StatusSubmitted}
	}
	if msg.ConversationID == "" {
		msg.ConversationID = resp.ConversationID
	}
	if msg.MessageID == "" {
		msg.MessageID = resp.MessageID
	}
	msg.SpaceID = spaceID
	msg.Status = ParseStatus(string(msg.Status))
	return msg, nil
}

// CreateMessage appends a message to an existing conversation.
func (c *Client) CreateMessage(ctx context.Context, spaceID, conversationID, content string) (*Message, error) {
	path := fmt.Sprintf("%s/spaces/%s/conversations/%s/messages",
		apiPrefix, url.PathEscape(spaceID), url.PathEscape(conversationID))

	var msg Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	msg.SpaceID = spaceID
	msg.Status = ParseStatus(string(msg.Status))
	return &msg, nil
}

// GetMessage fetches the current state of a message, including its status and
// any attachments. Safe to call repeatedly; a terminal message never changes.
func (c *Client) GetMessage(ctx context.Context, spaceID, conversationID, messageID string) (*Message, error) {
	path := fmt.Sprintf("%s/spaces/%s/conversations/%s/messages/%s",
		apiPrefix, url.PathEscape(spaceID), url.PathEscape(conversationID), url.PathEscape(messageID))

	var msg Message
	if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}
	msg.SpaceID = spaceID
	msg.Status = ParseStatus(string(msg.Status))
	return &msg, nil
}

// GetAttachmentQueryResult fetches the stored SQL result of a query
// attachment on a completed message.
func (c *Client) GetAttachmentQueryResult(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*QueryResult, error) {
	path := fmt.Sprintf("%s/spaces/%s/conversations/%s/messages/%s/attachments/%s/query-result",
		apiPrefix, url.PathEscape(spaceID), url.PathEscape(conversationID),
		url.PathEscape(messageID), url.PathEscape(attachmentID))

	var res QueryResult
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, fmt.Errorf("get attachment query result: %w", err)
	}
	return &res, nil
}

// ExecuteAttachmentQuery re-executes the SQL of a query attachment and
// returns the fresh result.
func (c *Client) ExecuteAttachmentQuery(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*QueryResult, error) {
	path := fmt.Sprintf("%s/spaces/%s/conversations/%s/messages/%s/attachments/%s/execute-query",
		apiPrefix, url.PathEscape(spaceID), url.PathEscape(conversationID),
		url.PathEscape(messageID), url.PathEscape(attachmentID))

	var res QueryResult
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, fmt.Errorf("execute attachment query: %w", err)
	}
	return &res, nil
}

// GenerateDownload requests a full query result download for an attachment
// and returns the transient statement handle.
func (c *Client) GenerateDownload(ctx context.Context, spaceID, conversationID, messageID, attachmentID string) (*DownloadResult, error) {
	path := fmt.Sprintf("%s/spaces/%s/conversations/%s/messages/%s/attachments/%s/downloads",
		apiPrefix, url.PathEscape(spaceID), url.PathEscape(conversationID),
		url.PathEscape(messageID), url.PathEscape(attachmentID))

	var res DownloadResult
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, fmt.Errorf("generate download: %w", err)
	}
	return &res, nil
}

// GetSpace fetches title and description of a space.
func (c *Client) GetSpace(ctx context.Context, spaceID string) (*Space, error) {
	path := fmt.Sprintf("%s/spaces/%s", apiPrefix, url.PathEscape(spaceID))

	var space Space
	if err := c.do(ctx, http.MethodGet, path, nil, &space); err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	space.SpaceID = spaceID
	return &space, nil
}

// apiError is the error body the workspace returns for non-2xx responses.
type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.auth.token(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Message, apiErr.ErrorCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// tokenSource yields a bearer token for each request.
type tokenSource interface {
	token(ctx context.Context) (string, error)
}

type staticToken string

func (t staticToken) token(context.Context) (string, error) { return string(t), nil }

// oauthToken implements the OAuth client-credentials flow for service
// principals, caching the access token until shortly before expiry.
type oauthToken struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client

	mu      sync.Mutex
	access  string
	expires time.Time
}

func (o *oauthToken) token(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.access != "" && time.Now().Before(o.expires) {
		return o.access, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "all-apis")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(o.clientID, o.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	o.access = body.AccessToken
	// Refresh one minute early to avoid using a token at the expiry edge.
	o.expires = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	return o.access, nil
}
