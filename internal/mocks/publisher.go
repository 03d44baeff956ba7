package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PublisherMock records published events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}
