package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"

	"github.com/Skotchmaster/eventbook/internal/models"
)

type pageElementDoc struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Classname string `json:"classname"`
	UserID    string `json:"user_id"`
}

func toDoc(el *models.PageElement) pageElementDoc {
	return pageElementDoc{
		ID:        el.ID.String(),
		Content:   el.Content,
		Classname: el.Classname,
		UserID:    el.UserID.String(),
	}
}

func (d pageElementDoc) model() models.PageElement {
	id, _ := uuid.Parse(d.ID)
	owner, _ := uuid.Parse(d.UserID)
	return models.PageElement{ID: id, Content: d.Content, Classname: d.Classname, UserID: owner}
}

// PageElementIndex keeps page elements in an Elasticsearch index.
type PageElementIndex struct {
	Client *elasticsearch.Client
	Index  string
}

func responseError(op string, status int, body io.Reader) error {
	raw, _ := io.ReadAll(body)
	return fmt.Errorf("es: %s failed: status %d: %s", op, status, bytes.TrimSpace(raw))
}

func (x *PageElementIndex) IndexPageElement(ctx context.Context, el *models.PageElement) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(toDoc(el)); err != nil {
		return fmt.Errorf("es: encode: %w", err)
	}

	res, err := x.Client.Index(x.Index, &buf,
		x.Client.Index.WithContext(ctx),
		x.Client.Index.WithDocumentID(el.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("es: index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("index", res.StatusCode, res.Body)
	}
	return nil
}

// DeletePageElement treats a missing document as already deleted.
func (x *PageElementIndex) DeletePageElement(ctx context.Context, id uuid.UUID) error {
	res, err := x.Client.Delete(x.Index, id.String(), x.Client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("es: delete: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", res.StatusCode, res.Body)
	}
	return nil
}

func (x *PageElementIndex) SearchPageElements(ctx context.Context, query string, from, size int) (int64, []models.PageElement, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"classname^2", "content"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("es: encode: %w", err)
	}

	res, err := x.Client.Search(
		x.Client.Search.WithContext(ctx),
		x.Client.Search.WithIndex(x.Index),
		x.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("es: search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, nil, responseError("search", res.StatusCode, res.Body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source pageElementDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("es: decode: %w", err)
	}

	items := make([]models.PageElement, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		items[i] = hit.Source.model()
	}
	return r.Hits.Total.Value, items, nil
}

// NopIndex is used when no Elasticsearch URL is configured.
type NopIndex struct{}

func (NopIndex) IndexPageElement(context.Context, *models.PageElement) error { return nil }

func (NopIndex) DeletePageElement(context.Context, uuid.UUID) error { return nil }
