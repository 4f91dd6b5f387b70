package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aozora-lab/poster-cli/internal/model"
	"github.com/aozora-lab/poster-cli/pkg/catalog"
	"github.com/aozora-lab/poster-cli/pkg/wordpress"
)

// --- Catalog Mock ---

type mockCatalogClient struct {
	mock.Mock
}

func (m *mockCatalogClient) Search(ctx context.Context, req catalog.SearchRequest) ([]model.CatalogItem, error) {
	args := m.Called(ctx, req)
	if rf, ok := args.Get(0).(func(context.Context, catalog.SearchRequest) []model.CatalogItem); ok {
		return rf(ctx, req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CatalogItem), args.Error(1)
}

func (m *mockCatalogClient) FetchDescription(ctx context.Context, pageURL string) (string, error) {
	args := m.Called(ctx, pageURL)
	return args.String(0), args.Error(1)
}

// --- WordPress Mock ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) CreatePost(ctx context.Context, req wordpress.CreatePostRequest) (*wordpress.Post, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wordpress.Post), args.Error(1)
}

func (m *mockPublisher) UpdatePostStatus(ctx context.Context, id int, status string) (*wordpress.Post, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wordpress.Post), args.Error(1)
}

// --- Analysis Provider Stub ---

type stubProvider struct {
	name   string
	result *model.AnalysisResult
	err    error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Analyze(_ context.Context, _ *model.CatalogItem) (*model.AnalysisResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	res := *p.result
	return &res, nil
}
