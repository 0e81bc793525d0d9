package hetzner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudhand/cloudhand/internal/errors"
)

const defaultEndpoint = "https://api.hetzner.cloud/v1"

const perPage = 50

// client is a minimal bearer-token REST client for the Hetzner Cloud API
type client struct {
	token      string
	endpoint   string
	httpClient *http.Client
}

func newClient(token, endpoint string) *client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &client{
		token:    token,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pagination struct {
	NextPage *int `json:"next_page"`
}

type listMeta struct {
	Pagination pagination `json:"pagination"`
}

// listPaginated fetches every page of a listing endpoint, following
// meta.pagination.next_page until exhausted. Items are returned as raw JSON so
// callers can both decode typed fields and preserve the full source object.
func (c *client) listPaginated(ctx context.Context, path, rootKey string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	page := 1

	for {
		body, err := c.get(ctx, path, page)
		if err != nil {
			return nil, err
		}

		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to parse %s response: %w", path, err)
		}

		var chunk []json.RawMessage
		if raw, ok := envelope[rootKey]; ok {
			if err := json.Unmarshal(raw, &chunk); err != nil {
				return nil, fmt.Errorf("failed to parse %s list under %q: %w", path, rootKey, err)
			}
		}
		items = append(items, chunk...)

		var meta listMeta
		if raw, ok := envelope["meta"]; ok {
			_ = json.Unmarshal(raw, &meta)
		}
		if meta.Pagination.NextPage == nil {
			break
		}
		page = *meta.Pagination.NextPage
	}

	return items, nil
}

func (c *client) get(ctx context.Context, path string, page int) ([]byte, error) {
	u := fmt.Sprintf("%s/%s?%s", c.endpoint, path, url.Values{
		"page":     []string{strconv.Itoa(page)},
		"per_page": []string{strconv.Itoa(perPage)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransient, fmt.Sprintf("hetzner API request to %s failed", path))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransient, "failed to read hetzner API response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewTransient("hetzner API request to %s failed with status %d", path, resp.StatusCode)
	}
	return body, nil
}
