package backend

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

	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/models"
)

const (
	maxPageBytes  = 32 << 20
	maxErrorBytes = 4 << 10
)

// Client talks to the upstream message API. Every call carries the caller's
// bearer token; the client itself holds no credentials.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client for the API rooted at baseURL. A nil httpClient
// uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: u, httpClient: httpClient, logger: logger}, nil
}

// ListMessages fetches one page of a patient's conversation.
func (c *Client) ListMessages(ctx context.Context, token, patientID string, pageNumber, pageSize int) (Page, error) {
	q := url.Values{}
	q.Set("patientId", patientID)
	q.Set("pageNumber", strconv.Itoa(pageNumber))
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("paginationRequired", "true")

	resp, err := c.do(ctx, http.MethodGet, c.endpoint(q, "messages"), token, nil)
	if err != nil {
		return Page{}, fmt.Errorf("list messages page %d: %w", pageNumber, err)
	}
	defer resp.Body.Close()

	if err := checkStatus("list messages", resp); err != nil {
		return Page{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read messages page %d: %w", pageNumber, err)
	}

	page, err := ParsePage(body)
	if err != nil {
		return Page{}, fmt.Errorf("parse messages page %d: %w", pageNumber, err)
	}

	c.logger.Debug("fetched message page",
		zap.String("patientId", patientID),
		zap.Int("page", pageNumber),
		zap.Int("count", len(page.Messages)),
		zap.Stringer("shape", page.Shape))

	return page, nil
}

// DeleteMessage deletes a single message by id.
func (c *Client) DeleteMessage(ctx context.Context, token, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.endpoint(nil, "messages", url.PathEscape(id)), token, nil)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused by the next delete.
	defer io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBytes))

	return checkStatus("delete message "+id, resp)
}

// CreateMessage appends a message to a patient's conversation.
func (c *Client) CreateMessage(ctx context.Context, token string, msg models.Message) (*models.Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.endpoint(nil, "messages"), token, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("create message", resp); err != nil {
		return nil, err
	}

	var created models.Message
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode created message: %w", err)
	}
	return &created, nil
}

func (c *Client) endpoint(q url.Values, elem ...string) string {
	u := c.baseURL.JoinPath(elem...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
