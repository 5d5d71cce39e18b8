package api

import (
	"github.com/stretchr/testify/mock"
)

type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(tokenString string) (string, error) {
	args := m.Called(tokenString)
	return args.String(0), args.Error(1)
}

type MockMembershipAuthority struct {
	mock.Mock
}

func (m *MockMembershipAuthority) Role(projectId, userId string) (string, error) {
	args := m.Called(projectId, userId)
	return args.String(0), args.Error(1)
}
