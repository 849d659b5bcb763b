// Package search indexes and queries products in Elasticsearch.
package search

import (
	"context"
	"time"

	"github.com/utafrali/glowskin/internal/domain"
)

// Engine is a full-text product index.
type Engine interface {
	// Index adds or replaces a product document.
	Index(ctx context.Context, p *domain.Product) error

	// Delete removes a product document; missing documents are not an error.
	Delete(ctx context.Context, id string) error

	// Search returns matching product ids in rank order and the total hits.
	Search(ctx context.Context, q Query) ([]string, int, error)

	// Ping checks the cluster is reachable.
	Ping(ctx context.Context) error
}

// Query is a product search request.
type Query struct {
	Text     string
	Category string
	SkinType string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
	Page     int
	PerPage  int
}

// Document is the indexed representation of a product.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Ingredients string    `json:"ingredients"`
	Tags        []string  `json:"tags"`
	SkinTypes   []string  `json:"skin_types"`
	Price       int64     `json:"price"`
	Rating      float64   `json:"rating"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDocument converts a product to its search document.
func NewDocument(p *domain.Product) Document {
	return Document{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Category:    p.Category,
		Brand:       p.Brand,
		Ingredients: p.Ingredients,
		Tags:        p.Tags,
		SkinTypes:   p.SkinTypes,
		Price:       p.Price,
		Rating:      p.Rating,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
	}
}
