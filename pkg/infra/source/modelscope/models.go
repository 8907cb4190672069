// Package modelscope implements the source adapter that watches an
// organization's model list on ModelScope. Newly appearing models are the
// signal; the cursor is the set of model ids already observed.
package modelscope

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lookout/pkg/domain/interfaces"
	"github.com/m-mizutani/lookout/pkg/domain/model"
	"github.com/m-mizutani/lookout/pkg/domain/types"
	"github.com/m-mizutani/lookout/pkg/infra/httpclient"
)

const (
	defaultBaseURL = "https://modelscope.cn"
	pageSize       = 50
	maxItems       = 3000
)

// cursor holds every model id this source has already reported. Sets make
// a coarser cursor than a timestamp watermark, but the endpoint offers no
// reliable "changed since" filter.
type cursor struct {
	KnownModelIDs []string `json:"known_model_ids"`
}

func encodeCursor(known map[string]bool) string {
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	raw, _ := json.Marshal(cursor{KnownModelIDs: ids})
	return string(raw)
}

func decodeCursor(raw *string) map[string]bool {
	known := map[string]bool{}
	if raw == nil || *raw == "" {
		return known
	}
	var c cursor
	if err := json.Unmarshal([]byte(*raw), &c); err != nil {
		return known
	}
	for _, id := range c.KnownModelIDs {
		if id != "" {
			known[id] = true
		}
	}
	return known
}

// apiModel is the subset of the openapi models payload the adapter reads.
type apiModel struct {
	ID           string   `json:"id"`
	LastModified string   `json:"last_modified"`
	Tasks        []string `json:"tasks"`
}

type apiResponse struct {
	Success *bool `json:"success"`
	Data    *struct {
		Models     []apiModel `json:"models"`
		TotalCount int        `json:"total_count"`
	} `json:"data"`
}

// ModelsSource watches one organization's models through the openapi
// endpoint, paging until the reported total or the item cap is reached.
type ModelsSource struct {
	org     string
	client  *httpclient.Client
	baseURL string
	now     func() time.Time
}

// Option configures a ModelsSource.
type Option func(*ModelsSource)

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(baseURL string) Option {
	return func(s *ModelsSource) {
		s.baseURL = baseURL
	}
}

// NewModelsSource creates a source for the given org.
func NewModelsSource(org string, client *httpclient.Client, opts ...Option) *ModelsSource {
	s := &ModelsSource{
		org:     org,
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
	return "modelscope:" + s.org + ":models"
}

// Poll fetches the full model list and emits a model_added event for every
// id not yet in the cursor set. The new cursor is the union of known and
// freshly observed ids, so removals upstream never resurrect events.
func (s *ModelsSource) Poll(ctx context.Context, rawCursor *string) (*interfaces.PollResult, error) {
	known := decodeCursor(rawCursor)

	found := map[string]apiModel{}
	for pageNumber := 1; pageNumber*pageSize <= maxItems; pageNumber++ {
		pageURL, err := httpclient.WithQueryParams(s.baseURL+"/openapi/v1/models", map[string]string{
			"owner":       s.org,
			"sort":        "last_modified",
			"page_number": strconv.Itoa(pageNumber),
			"page_size":   strconv.Itoa(pageSize),
		})
		if err != nil {
			return nil, err
		}

		resp, err := s.client.Get(ctx, pageURL, map[string]string{"Accept": "application/json"})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch modelscope models",
				goerr.T(types.TagSource), goerr.V("org", s.org))
		}

		var payload apiResponse
		if err := json.Unmarshal(resp.Body, &payload); err != nil {
			return nil, goerr.Wrap(err, "modelscope response is not valid JSON",
				goerr.T(types.TagSource),
				goerr.V("org", s.org), goerr.V("url", resp.URL),
				goerr.V("body_prefix", bodyPrefix(resp.Body)))
		}
		if payload.Success == nil || payload.Data == nil {
			return nil, goerr.New("modelscope response has unexpected shape",
				goerr.T(types.TagSource),
				goerr.V("org", s.org), goerr.V("url", resp.URL),
				goerr.V("body_prefix", bodyPrefix(resp.Body)))
		}

		for _, it := range payload.Data.Models {
			if it.ID == "" {
				continue
			}
			found[it.ID] = it
		}

		if payload.Data.TotalCount <= pageNumber*pageSize || len(payload.Data.Models) == 0 {
			break
		}
	}

	newIDs := make([]string, 0, len(found))
	for id := range found {
		if !known[id] {
			newIDs = append(newIDs, id)
		}
	}
	sort.Strings(newIDs)

	observed := s.now()
	var events []model.Event
	for _, id := range newIDs {
		it := found[id]
		var occurred *time.Time
		if ts, err := time.Parse(time.RFC3339, it.LastModified); err == nil {
			utc := ts.UTC()
			occurred = &utc
		}
		events = append(events, model.Event{
			Source:       "modelscope",
			ResourceType: "org_model",
			ResourceID:   s.org,
			EventType:    "model_added",
			EventID:      id,
			Title:        id,
			Summary:      strings.Join(it.Tasks, ","),
			URL:          s.baseURL + "/models/" + id,
			OccurredAt:   occurred,
			ObservedAt:   observed,
		})
	}

	for id := range found {
		known[id] = true
	}
	newCursor := encodeCursor(known)

	return &interfaces.PollResult{Events: events, NewCursor: &newCursor}, nil
}

func bodyPrefix(body []byte) string {
	const limit = 400
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit])
}
