package outbox

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
	"time"
)

const schemaRegistryContentType = "application/vnd.schemaregistry.v1+json"

var errSubjectNotFound = errors.New("schema subject not found")

// RegistryError is a non-success reply from the schema registry.
type RegistryError struct {
	Op      string
	Subject string
	Status  int
	Code    int    `json:"error_code"`
	Message string `json:"message"`
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry %s %s: status %d: error_code %d: %s", e.Op, e.Subject, e.Status, e.Code, e.Message)
}

// SchemaRegistryClient resolves JSON schema ids from a Confluent-compatible
// registry, registering a subject the first time it is seen.
type SchemaRegistryClient struct {
	baseURL string
	http    *http.Client
}

// RegistryOption customises a SchemaRegistryClient.
type RegistryOption func(*SchemaRegistryClient)

// WithHTTPClient replaces the default client, which times out after 10s.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(s *SchemaRegistryClient) { s.http = c }
}

// NewSchemaRegistryClient returns a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string, opts ...RegistryOption) *SchemaRegistryClient {
	c := &SchemaRegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureSchema returns the id of the latest version of subject, registering
// schema when the subject does not exist yet. Other lookup failures are
// returned as is.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.call(ctx, "lookup", subject, http.MethodGet, "/versions/latest", nil)
	if !errors.Is(err, errSubjectNotFound) {
		return id, err
	}

	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	return c.call(ctx, "register", subject, http.MethodPost, "/versions", body)
}

// call performs one request against /subjects/{subject}{suffix} and decodes
// the schema id from the reply.
func (c *SchemaRegistryClient) call(ctx context.Context, op, subject, method, suffix string, body []byte) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	endpoint := c.baseURL + "/subjects/" + url.PathEscape(subject) + suffix
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", schemaRegistryContentType)
	if body != nil {
		req.Header.Set("Content-Type", schemaRegistryContentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry %s %s: %w", op, subject, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return 0, errSubjectNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		regErr := &RegistryError{Op: op, Subject: subject, Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(raw, regErr) != nil || regErr.Message == "" {
			regErr.Message = strings.TrimSpace(string(raw))
		}
		return 0, regErr
	}

	var reply struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return 0, fmt.Errorf("schema registry %s %s: decode reply: %w", op, subject, err)
	}
	return reply.ID, nil
}
