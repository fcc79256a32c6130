package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, website string) (string, error) {
	args := m.Called(ctx, website)
	return args.String(0), args.Error(1)
}

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) RenderText(ctx context.Context, url string) string {
	args := m.Called(ctx, url)
	return args.String(0)
}

func (m *mockRenderer) Screenshot(ctx context.Context, url string) string {
	args := m.Called(ctx, url)
	return args.String(0)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, companyName, prompt, screenshotB64 string) (map[string]any, error) {
	args := m.Called(ctx, companyName, prompt, screenshotB64)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}
