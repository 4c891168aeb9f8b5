package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"go-status-hub/internal/domain"
)

// HTTPFetcher reads snapshots from the REST API.
type HTTPFetcher struct {
	baseURL string
	client  *resty.Client
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resty.New().SetTimeout(timeout),
	}
}

func snapshotPath(channel string) (string, error) {
	switch channel {
	case domain.ChannelServiceUpdates:
		return "/api/v1/services", nil
	case domain.ChannelIncidentUpdates:
		return "/api/v1/incidents", nil
	}
	return "", fmt.Errorf("no snapshot for channel %q", channel)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, channel string) ([]Entry, error) {
	path, err := snapshotPath(channel)
	if err != nil {
		return nil, err
	}

	var docs []json.RawMessage
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetResult(&docs).
		Get(f.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: %s", path, resp.Status())
	}

	entity := entityOf(channel)
	entries := make([]Entry, 0, len(docs))
	for _, raw := range docs {
		e, err := entryFromDocument(entity, raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
