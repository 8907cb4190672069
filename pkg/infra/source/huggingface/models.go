// Package huggingface implements the source adapter that watches an
// organization's model list on the HuggingFace hub.
package huggingface

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/interfaces"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	"github.com/m-mizutani/lookout/pkg/infra/httpclient"
)

const defaultBaseURL = "https://huggingface.co"

// cursor is a watermark over the hub's lastModified timestamps.
type cursor struct {
	LastModifiedAfter string `json:"last_modified_after"`
}

func encodeCursor(after time.Time) string {
	raw, _ := json.Marshal(cursor{LastModifiedAfter: after.UTC().Format(time.RFC3339)})
	return string(raw)
}

func decodeCursor(raw *string) *time.Time {
	if raw == nil || *raw == "" {
		return nil
	}
	var c cursor
	if err := json.Unmarshal([]byte(*raw), &c); err != nil {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, c.LastModifiedAfter)
	if err != nil {
		return nil
	}
	return &ts
}

// hubModel is the subset of the hub models payload the adapter reads.
type hubModel struct {
	ModelID      string `json:"modelId"`
	ID           string `json:"id"`
	SHA          string `json:"sha"`
	LastModified string `json:"lastModified"`
	PipelineTag  string `json:"pipeline_tag"`
	LibraryName  string `json:"library_name"`
}

// ModelsSource watches one organization's (or user's) models via the hub
// API. Pagination follows RFC5988 Link headers.
type ModelsSource struct {
	org     string
	token   string
	client  *httpclient.Client
	baseURL string
	now     func() time.Time
}

// Option configures a ModelsSource.
type Option func(*ModelsSource)

// WithBaseURL overrides the hub endpoint, for tests.
func WithBaseURL(baseURL string) Option {
	return func(s *ModelsSource) {
		s.baseURL = baseURL
	}
}

// NewModelsSource creates a source for the given org. The token is optional
// and raises the hub's rate limits when present.
func NewModelsSource(org, token string, client *httpclient.Client, opts ...Option) *ModelsSource {
	s := &ModelsSource{
		org:     org,
		token:   token,
		client:  client,
		baseURL: defaultBaseURL,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ModelsSource) Key() string {
	return "huggingface:" + s.org + ":models"
}

func (s *ModelsSource) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if s.token != "" {
		h["Authorization"] = "Bearer " + s.token
	}
	return h
}

// Poll lists the org's models sorted by lastModified descending and emits a
// model_updated event for every model changed after the cursor watermark.
func (s *ModelsSource) Poll(ctx context.Context, rawCursor *string) (*interfaces.PollResult, error) {
	after := decodeCursor(rawCursor)
	newest := after

	nextURL, err := httpclient.WithQueryParams(s.baseURL+"/api/models", map[string]string{
		"author":    s.org,
		"sort":      "lastModified",
		"direction": "-1",
		"limit":     "100",
		"full":      "true",
	})
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for nextURL != "" {
		resp, err := s.client.Get(ctx, nextURL, s.headers())
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch hub models",
				goerr.T(types.TagSource), goerr.V("org", s.org))
		}

		var items []hubModel
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			return nil, goerr.Wrap(err, "hub models response is not a JSON list",
				goerr.T(types.TagSource), goerr.V("org", s.org), goerr.V("url", resp.URL))
		}

		for _, it := range items {
			modelID := it.ModelID
			if modelID == "" {
				modelID = it.ID
			}
			if modelID == "" || it.LastModified == "" {
				continue
			}
			lastModified, err := time.Parse(time.RFC3339, it.LastModified)
			if err != nil {
				continue
			}
			lastModified = lastModified.UTC()
			if after != nil && !lastModified.After(*after) {
				continue
			}
			if newest == nil || lastModified.After(*newest) {
				ts := lastModified
				newest = &ts
			}

			eventID := it.SHA
			if eventID == "" {
				eventID = modelID
			}
			summary := it.PipelineTag
			if summary == "" {
				summary = it.LibraryName
			}

			occurred := lastModified
			events = append(events, model.Event{
				Source:       "huggingface",
				ResourceType: "org_model",
				ResourceID:   s.org,
				EventType:    "model_updated",
				EventID:      eventID,
				Title:        modelID,
				Summary:      summary,
				URL:          s.baseURL + "/" + modelID,
				OccurredAt:   &occurred,
				ObservedAt:   s.now(),
			})
		}

		nextURL = httpclient.NextLink(resp.Header)
	}

	result := &interfaces.PollResult{Events: events}
	if newest != nil {
		c := encodeCursor(*newest)
		result.NewCursor = &c
	}
	return result, nil
}
