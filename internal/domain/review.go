package domain

import "time"

// Review is a product review, one per user and product.
type Review struct {
	ID                 string    `json:"id"`
	ProductID          string    `json:"product_id"`
	UserID             string    `json:"user_id"`
	UserName           string    `json:"user_name"`
	Rating             int       `json:"rating"`
	Title              string    `json:"title,omitempty"`
	Comment            string    `json:"comment,omitempty"`
	IsVerifiedPurchase bool      `json:"is_verified_purchase"`
	CreatedAt          time.Time `json:"created_at"`
}

// ReviewSummary aggregates a product's reviews.
type ReviewSummary struct {
	Average      float64     `json:"average"`
	Count        int         `json:"count"`
	Distribution map[int]int `json:"distribution"`
}

// NewReviewSummary builds a summary with every star bucket present.
func NewReviewSummary() ReviewSummary {
	return ReviewSummary{Distribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
}
