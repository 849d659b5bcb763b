package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/glowskin/internal/domain"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

func newTestCampaignService(repo *mockCampaignRepository) *CampaignService {
	svc := NewCampaignService(repo, newTestLogger())
	svc.now = fixedClock
	return svc
}

func diwaliInput() *CampaignInput {
	return &CampaignInput{
		Name:          "Diwali Glow Sale",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: 20,
		Categories:    []string{"serums"},
		StartsAt:      fixedNow,
		EndsAt:        fixedNow.Add(72 * time.Hour),
	}
}

func withSlug(s string) any {
	return mock.MatchedBy(func(c *domain.Campaign) bool { return c.Slug == s })
}

func TestCreateCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	repo.On("Create", mock.Anything, withSlug("diwali-glow-sale")).Return(nil)

	c, err := svc.CreateCampaign(context.Background(), diwaliInput())
	require.NoError(t, err)
	assert.Equal(t, "diwali-glow-sale", c.Slug)
	assert.True(t, c.IsActive)
	assert.Equal(t, []string{"serums"}, c.Categories)
	assert.NotNil(t, c.ProductIDs)
}

func TestCreateCampaign_SlugCollision(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	repo.On("Create", mock.Anything, withSlug("diwali-glow-sale")).
		Return(apperrors.AlreadyExists("campaign", "slug", "diwali-glow-sale"))
	repo.On("Create", mock.Anything, withSlug("diwali-glow-sale-2")).Return(nil)

	c, err := svc.CreateCampaign(context.Background(), diwaliInput())
	require.NoError(t, err)
	assert.Equal(t, "diwali-glow-sale-2", c.Slug)
}

func TestCreateCampaign_StoreError(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	_, err := svc.CreateCampaign(context.Background(), diwaliInput())
	require.Error(t, err)
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestCreateCampaign_Invalid(t *testing.T) {
	svc := newTestCampaignService(new(mockCampaignRepository))

	tests := map[string]func(in *CampaignInput){
		"type":        func(in *CampaignInput) { in.DiscountType = "bogo" },
		"zero value":  func(in *CampaignInput) { in.DiscountValue = 0 },
		"over 100":    func(in *CampaignInput) { in.DiscountValue = 101 },
		"ends first":  func(in *CampaignInput) { in.EndsAt = in.StartsAt },
		"unsluggable": func(in *CampaignInput) { in.Name = "***" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := diwaliInput()
			mutate(in)
			_, err := svc.CreateCampaign(context.Background(), in)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestUpdateCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	existing := &domain.Campaign{ID: "c1", Name: "Old", Slug: "old", CreatedAt: fixedNow.Add(-time.Hour)}
	repo.On("GetByID", mock.Anything, "c1").Return(existing, nil)
	repo.On("Update", mock.Anything, existing).Return(nil)

	c, err := svc.UpdateCampaign(context.Background(), "c1", diwaliInput())
	require.NoError(t, err)
	assert.Equal(t, "Diwali Glow Sale", c.Name)
	assert.Equal(t, "old", c.Slug)
	assert.Equal(t, fixedNow, c.UpdatedAt)
}

func TestActiveCampaigns(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestCampaignService(repo)

	repo.On("ListRunning", mock.Anything, fixedNow).Return([]domain.Campaign{{ID: "c1"}}, nil)

	got, err := svc.ActiveCampaigns(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
