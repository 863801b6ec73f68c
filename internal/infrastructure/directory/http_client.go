package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	apperrors "github.com/hftl-ims-research/wonder/pkg/errors"
)

// HTTPClient resolves identities against a remote directory service. It
// implements ports.DirectoryLookup.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	token   string
	logger  *zap.SugaredLogger
}

func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetToken installs the bearer token used for authenticated endpoints.
func (c *HTTPClient) SetToken(token string) { c.token = token }

// Login obtains an access token for the identity and keeps it for later
// calls.
func (c *HTTPClient) Login(ctx context.Context, rtcIdentity, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"rtcIdentity": rtcIdentity,
		"password":    password,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/login", payload, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

func (c *HTTPClient) Lookup(ctx context.Context, rtcIdentity string) ([]domain.DirectoryRecord, error) {
	path := "/api/v1/identities/" + url.PathEscape(rtcIdentity)

	var out struct {
		Records []domain.DirectoryRecord `json:"records"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Register publishes the local identity's directory record.
func (c *HTTPClient) Register(ctx context.Context, record domain.DirectoryRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/identities", payload, nil)
}

// Remove deletes the identity's directory record.
func (c *HTTPClient) Remove(ctx context.Context, rtcIdentity string) error {
	path := "/api/v1/identities/" + url.PathEscape(rtcIdentity)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFound("identity")
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewUnauthorized("directory rejected token")
	case resp.StatusCode >= 400:
		return apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("directory returned status %d", resp.StatusCode), resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
