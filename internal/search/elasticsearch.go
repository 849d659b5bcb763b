package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
)

const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":          { "type": "keyword" },
      "name":        { "type": "text", "analyzer": "english", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "slug":        { "type": "keyword" },
      "description": { "type": "text", "analyzer": "english" },
      "category":    { "type": "keyword" },
      "brand":       { "type": "text", "fields": { "keyword": { "type": "keyword" } } },
      "ingredients": { "type": "text", "analyzer": "english" },
      "tags":        { "type": "keyword" },
      "skin_types":  { "type": "keyword" },
      "price":       { "type": "long" },
      "rating":      { "type": "float" },
      "is_active":   { "type": "boolean" },
      "created_at":  { "type": "date" }
    }
  }
}`

// Elastic is the Elasticsearch-backed Engine.
type Elastic struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

// NewElastic connects to the cluster and creates the index if missing.
func NewElastic(ctx context.Context, cfg config.SearchConfig, logger *slog.Logger) (*Elastic, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.URLs,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	e := &Elastic{client: client, index: cfg.Index, logger: logger}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch: ensure index: %w", err)
	}
	return e, nil
}

func (e *Elastic) ensureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := responseError("create index", res); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.index))
	return nil
}

// Ping implements Engine.
func (e *Elastic) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	return responseError("elasticsearch ping", res)
}

// Index implements Engine.
func (e *Elastic) Index(ctx context.Context, p *domain.Product) error {
	data, err := json.Marshal(NewDocument(p))
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal product: %w", err)
	}
	res, err := e.client.Index(
		e.index,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(p.ID),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	return responseError("elasticsearch index", res)
}

// Delete implements Engine.
func (e *Elastic) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(e.index, id, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	if res.StatusCode == http.StatusNotFound {
		_ = res.Body.Close()
		return nil
	}
	return responseError("elasticsearch delete", res)
}

// Search implements Engine.
func (e *Elastic) Search(ctx context.Context, q Query) ([]string, int, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 || q.PerPage > 100 {
		q.PerPage = 20
	}

	data, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}
	res, err := e.client.Search(
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, 0, decodeError("elasticsearch search", res)
	}

	var body esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}
	ids := make([]string, 0, len(body.Hits.Hits))
	for _, h := range body.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, body.Hits.Total.Value, nil
}

func buildQuery(q Query) map[string]any {
	var must any = map[string]any{"match_all": map[string]any{}}
	if q.Text != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":         q.Text,
				"fields":        []string{"name^3", "name.autocomplete^2", "brand^2", "description", "ingredients", "tags"},
				"type":          "best_fields",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		}
	}

	filters := []any{map[string]any{"term": map[string]any{"is_active": true}}}
	if q.Category != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"category": q.Category}})
	}
	if q.SkinType != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"skin_types": q.SkinType}})
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		r := map[string]any{}
		if q.MinPrice != nil {
			r["gte"] = *q.MinPrice
		}
		if q.MaxPrice != nil {
			r["lte"] = *q.MaxPrice
		}
		filters = append(filters, map[string]any{"range": map[string]any{"price": r}})
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{must},
				"filter": filters,
			},
		},
		"from":             (q.Page - 1) * q.PerPage,
		"size":             q.PerPage,
		"track_total_hits": true,
		"_source":          false,
		"sort":             buildSort(q.Sort),
	}
}

func buildSort(sort string) []any {
	switch sort {
	case domain.SortPriceAsc:
		return []any{map[string]any{"price": "asc"}}
	case domain.SortPriceDesc:
		return []any{map[string]any{"price": "desc"}}
	case domain.SortNewest:
		return []any{map[string]any{"created_at": "desc"}}
	case domain.SortRating:
		return []any{map[string]any{"rating": "desc"}, "_score"}
	default:
		return []any{"_score"}
	}
}

// responseError closes res and returns an error for non-2xx responses.
func responseError(op string, res *esapi.Response) error {
	defer func() { _ = res.Body.Close() }()
	if !res.IsError() {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	return decodeError(op, res)
}

func decodeError(op string, res *esapi.Response) error {
	var body esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, body.Error.Type, body.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}
