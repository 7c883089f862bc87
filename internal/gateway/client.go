// Package gateway is the HTTP client for the gateway service, which fronts
// project storage and the search backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maraichr/nightcrawler/internal/auth"
	"github.com/maraichr/nightcrawler/internal/reindex"
	"github.com/maraichr/nightcrawler/pkg/models"
)

// Locator resolves the gateway base address.
type Locator interface {
	ResolveGatewayAddress(ctx context.Context) (string, bool)
}

// Client implements reindex.Gateway over HTTP.
type Client struct {
	locator     Locator
	secureToken string
	http        *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a gateway client. rps <= 0 disables outbound throttling.
func NewClient(locator Locator, secureToken string, timeout time.Duration, rps float64, burst int, logger *slog.Logger) *Client {
	c := &Client{
		locator:     locator,
		secureToken: secureToken,
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
	return c
}

var _ reindex.Gateway = (*Client)(nil)

func (c *Client) GetProject(ctx context.Context, projectID string) (models.Project, error) {
	body, err := c.do(ctx, http.MethodGet, reindex.ErrDownloadProjectData, nil,
		"projects", projectID)
	if err != nil {
		return models.Project{}, err
	}

	var project models.Project
	if err := json.Unmarshal(body, &project); err != nil {
		return models.Project{}, &reindex.GatewayError{Kind: reindex.ErrDownloadProjectData, Err: fmt.Errorf("decode project: %w", err)}
	}
	return project, nil
}

func (c *Client) ListDocuments(ctx context.Context, projectID, branchName string) ([]models.Document, error) {
	body, err := c.do(ctx, http.MethodGet, reindex.ErrDownloadDocuments, nil,
		"projects", projectID, "branches", branchName, "documents")
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, &reindex.GatewayError{Kind: reindex.ErrDownloadDocuments, Err: fmt.Errorf("decode documents: %w", err)}
	}
	return docs, nil
}

func (c *Client) GetDocumentContent(ctx context.Context, projectID, branchName string, doc models.Document) (string, error) {
	body, err := c.do(ctx, http.MethodGet, reindex.ErrDownloadDocumentContent, nil,
		"projects", projectID, "branches", branchName, "documents", "content", encodeURI(doc.URI))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) RemoveIndex(ctx context.Context, projectID, branchName string) error {
	_, err := c.do(ctx, http.MethodDelete, reindex.ErrRemoveIndexFailed, nil,
		"search", "projects", projectID, "branches", branchName)
	return err
}

// UploadIndex posts the record as a one-element array.
func (c *Client) UploadIndex(ctx context.Context, projectID, branchName string, record models.IndexRecord) error {
	payload, err := json.Marshal([]models.IndexRecord{record})
	if err != nil {
		return &reindex.GatewayError{Kind: reindex.ErrUploadDocumentFailed, Err: fmt.Errorf("marshal index: %w", err)}
	}
	_, err = c.do(ctx, http.MethodPost, reindex.ErrUploadDocumentFailed, payload,
		"search", "projects", projectID, "branches", branchName)
	return err
}

// do sends one request and returns the body of a 2xx response. Every failure
// is a *reindex.GatewayError of the given kind, except an unresolvable
// gateway which is reindex.ErrGatewayUnavailable.
func (c *Client) do(ctx context.Context, method string, kind error, payload []byte, segments ...string) ([]byte, error) {
	base, ok := c.locator.ResolveGatewayAddress(ctx)
	if !ok {
		return nil, reindex.ErrGatewayUnavailable
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &reindex.GatewayError{Kind: kind, Err: err}
		}
	}

	endpoint := joinPath(base, segments...)
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, &reindex.GatewayError{Kind: kind, Err: fmt.Errorf("create request: %w", err)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &reindex.GatewayError{Kind: kind, Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &reindex.GatewayError{Kind: kind, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("gateway call failed",
			slog.String("method", method),
			slog.String("url", endpoint),
			slog.Int("status", resp.StatusCode))
		return nil, &reindex.GatewayError{Kind: kind, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// authorize forwards the caller's credential when there is one and falls
// back to the service secret otherwise. Set, not Add, keeps a single value.
func (c *Client) authorize(req *http.Request) {
	if credential, ok := auth.CredentialFrom(req.Context()); ok {
		req.Header.Set("Authorization", credential)
		return
	}
	req.Header.Set("Authorization", auth.SchemeSecureToken+" "+c.secureToken)
}

// encodeURI flattens a document path into a single path segment; the gateway
// expects ':' where the path had '/'.
func encodeURI(uri string) string {
	return strings.ReplaceAll(uri, "/", ":")
}

func joinPath(base string, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")
}
