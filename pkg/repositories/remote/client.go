// Package remote executes statements against a backend exposed over the
// HTTP query endpoint (POST /api/query, GET /health).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/errors"
	"github.com/TFMV/fedquery/pkg/models"
	"github.com/TFMV/fedquery/pkg/repositories"
)

const (
	// DefaultTimeout bounds a query round trip.
	DefaultTimeout = 10 * time.Second
	// DefaultHealthTimeout bounds the health probe.
	DefaultHealthTimeout = 5 * time.Second

	maxHealthBody = 64 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
	// Token is sent as a bearer token when set.
	Token string
}

// Client implements repositories.SourceClient over HTTP.
type Client struct {
	baseURL       string
	token         string
	healthTimeout time.Duration
	httpClient    *http.Client
	backend       models.BackendID
	logger        zerolog.Logger
}

var _ repositories.SourceClient = (*Client)(nil)
var _ repositories.HealthChecker = (*Client)(nil)

// NewClient creates a remote client serving backend.
func NewClient(cfg Config, backend models.BackendID, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		healthTimeout: cfg.HealthTimeout,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		backend:       backend,
		logger:        logger.With().Str("repo", "remote").Str("backend", string(backend)).Logger(),
	}
}

// Backend returns the backend identifier.
func (c *Client) Backend() models.BackendID {
	return c.backend
}

// BaseURL returns the endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type queryRequest struct {
	SQL string `json:"sql"`
	// Statement and Args repeat the statement before rendering. Backends that
	// understand them bind Args instead of running SQL.
	Statement string        `json:"statement,omitempty"`
	Args      []interface{} `json:"args,omitempty"`
}

type queryResponse struct {
	Success bool            `json:"success"`
	Columns []string        `json:"columns"`
	Data    json.RawMessage `json:"data"`
	Rows    json.RawMessage `json:"rows"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// Execute posts the statement with its arguments inlined as literals. Bound
// statements also carry the unrendered text and arguments.
func (c *Client) Execute(ctx context.Context, stmt models.SQLStatement) (*models.ResultSet, error) {
	sqlText := stmt.Render()
	c.logger.Debug().Str("sql", truncate(sqlText, 120)).Msg("Posting statement")

	request := queryRequest{SQL: sqlText}
	if len(stmt.Args) > 0 {
		request.Statement = stmt.Text
		request.Args = stmt.Args
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode request").WithSQL(sqlText)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidRequest, "failed to build request").WithSQL(sqlText)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(err).WithSQL(sqlText)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err).WithSQL(sqlText)
	}

	var envelope queryResponse
	decodeErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("API Error %d", resp.StatusCode)
		if decodeErr == nil && envelope.Error != "" {
			msg += ": " + envelope.Error
		}
		return nil, errors.New(errors.CodeQueryFailed, msg).
			WithSQL(sqlText).
			WithDetail("status", resp.StatusCode)
	}

	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, errors.CodeQueryFailed, "invalid response from remote backend").WithSQL(sqlText)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "remote backend reported failure"
		}
		return nil, errors.New(errors.CodeQueryFailed, msg).WithSQL(sqlText)
	}

	payload := envelope.Data
	if len(payload) == 0 || string(payload) == "null" {
		payload = envelope.Rows
	}
	rows, err := models.DecodeRows(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "invalid rows in response").WithSQL(sqlText)
	}
	if rows == nil {
		rows = []models.Row{}
	}

	columns := envelope.Columns
	if len(columns) == 0 && len(rows) > 0 {
		columns = sortedKeys(rows[0])
	}
	return &models.ResultSet{Columns: columns, Rows: rows}, nil
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health calls GET /health with the health timeout.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidRequest, "failed to build request")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeUnavailable, fmt.Sprintf("remote backend responded with status %d", resp.StatusCode))
	}

	var hr healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxHealthBody)).Decode(&hr); err != nil {
		return errors.Wrap(err, errors.CodeUnavailable, "invalid health response")
	}
	if hr.Status != "healthy" {
		return errors.New(errors.CodeUnavailable, fmt.Sprintf("remote backend status %q", hr.Status))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) transportError(err error) *errors.BackendError {
	if isTimeout(err) {
		return errors.Wrap(err, errors.CodeDeadlineExceeded, "remote backend did not respond in time")
	}
	if isDialError(err) {
		return errors.Wrap(err, errors.CodeConnectionFailed,
			fmt.Sprintf("Cannot connect to remote backend at %s. Is the server running?", c.baseURL))
	}
	return errors.Wrap(err, errors.CodeQueryFailed, err.Error())
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return stderrors.As(err, &dnsErr)
}

func sortedKeys(row models.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
