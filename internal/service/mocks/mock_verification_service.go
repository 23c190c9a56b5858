package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docproof/internal/service"
)

type MockVerificationService struct {
	mock.Mock
}

func (m *MockVerificationService) Verify(ctx context.Context, artifact []byte, contentType string) service.Verdict {
	args := m.Called(ctx, artifact, contentType)
	return args.Get(0).(service.Verdict)
}
