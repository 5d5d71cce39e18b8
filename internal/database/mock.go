package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetProjectRole(projectId, userId string) (string, error) {
	args := m.Called(projectId, userId)
	return args.String(0), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockChatRepository) ListRecentMessages(projectId string, limit int) ([]Message, error) {
	args := m.Called(projectId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) ReactionExists(projectId, messageId, senderId, emoji string) (bool, error) {
	args := m.Called(projectId, messageId, senderId, emoji)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) CreateReaction(reaction Reaction) error {
	args := m.Called(reaction)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteReaction(projectId, messageId, senderId, emoji string) error {
	args := m.Called(projectId, messageId, senderId, emoji)
	return args.Error(0)
}
func (m *MockChatRepository) ListReactions(projectId string, messageIds []string) ([]Reaction, error) {
	args := m.Called(projectId, messageIds)
	return args.Get(0).([]Reaction), args.Error(1)
}
func (m *MockChatRepository) PinExists(projectId, messageId string) (bool, error) {
	args := m.Called(projectId, messageId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) CreatePin(pin Pin) error {
	args := m.Called(pin)
	return args.Error(0)
}
func (m *MockChatRepository) DeletePin(projectId, messageId string) error {
	args := m.Called(projectId, messageId)
	return args.Error(0)
}
func (m *MockChatRepository) ListPinnedIds(projectId string) ([]string, error) {
	args := m.Called(projectId)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockChatRepository) UpsertReadMark(mark ReadMark) error {
	args := m.Called(mark)
	return args.Error(0)
}
func (m *MockChatRepository) CountReaders(projectId, messageId string) (int, error) {
	args := m.Called(projectId, messageId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) ReadCounts(projectId string, messageIds []string) (map[string]int, error) {
	args := m.Called(projectId, messageIds)
	return args.Get(0).(map[string]int), args.Error(1)
}
