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

const registryContentType = "application/vnd.schemaregistry.v1+json"

// registryError is a non-2xx answer from the registry.
type registryError struct {
	op     string
	status int
	body   string
}

func (e *registryError) Error() string {
	return fmt.Sprintf("schema registry %s error: %s", e.op, e.body)
}

func isSubjectMissing(err error) bool {
	var re *registryError
	return errors.As(err, &re) && re.status == http.StatusNotFound
}

// SchemaRegistryClient resolves JSON schema ids against a Confluent compatible registry.
type SchemaRegistryClient struct {
	base   string
	client *http.Client
}

// NewSchemaRegistryClient returns a client for the registry at baseURL.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureSchema returns the id of the subject's latest schema, registering the
// supplied JSON schema when the subject does not exist yet.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.call(ctx, "lookup", http.MethodGet, c.versionsURL(subject)+"/latest", nil)
	if !isSubjectMissing(err) {
		return id, err
	}

	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}
	return c.call(ctx, "register", http.MethodPost, c.versionsURL(subject), body)
}

func (c *SchemaRegistryClient) versionsURL(subject string) string {
	return c.base + "/subjects/" + url.PathEscape(subject) + "/versions"
}

// call performs one registry request and decodes the schema id from the reply.
func (c *SchemaRegistryClient) call(ctx context.Context, op, method, target string, body []byte) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", registryContentType)
	if body != nil {
		req.Header.Set("Content-Type", registryContentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("schema registry %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &registryError{op: op, status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}

	var out struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("schema registry %s: decode reply: %w", op, err)
	}
	return out.ID, nil
}
