package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

// PusherMock records pushes and reports the configured delivery result.
type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) Push(userID int, event any) bool {
	args := m.Called(userID, event)
	return args.Bool(0)
}

func (m *PusherMock) IsOnline(userID int) bool {
	args := m.Called(userID)
	return args.Bool(0)
}
