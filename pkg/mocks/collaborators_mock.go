// Package mocks provides testify mocks of the engine's collaborators and repositories.
package mocks

import (
	"context"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockMessenger is a mock implementation of protocol.Messenger.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, channelID, content string, hint protocol.DeliveryHint) error {
	args := m.Called(ctx, channelID, content, hint)

	return args.Error(0)
}

// MockTextGenerator is a mock implementation of protocol.TextGenerator.
type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) Complete(ctx context.Context, prompt string, subject protocol.SubjectContext) (string, error) {
	args := m.Called(ctx, prompt, subject)

	return args.String(0), args.Error(1)
}

// MockAutomationDisabler is a mock implementation of protocol.AutomationDisabler.
type MockAutomationDisabler struct {
	mock.Mock
}

func (m *MockAutomationDisabler) DisableAutomation(ctx context.Context, subjectID, reason string) error {
	args := m.Called(ctx, subjectID, reason)

	return args.Error(0)
}

// MockSubjectDirectory is a mock implementation of protocol.SubjectDirectory.
type MockSubjectDirectory struct {
	mock.Mock
}

func (m *MockSubjectDirectory) Subject(ctx context.Context, subjectID string) (*models.Subject, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Subject), args.Error(1)
}

// Collaborators bundles fresh mocks for every collaborator.
type Collaborators struct {
	Messenger *MockMessenger
	Generator *MockTextGenerator
	Disabler  *MockAutomationDisabler
	Subjects  *MockSubjectDirectory
}

// NewCollaborators creates a set of unconfigured mocks.
func NewCollaborators() *Collaborators {
	return &Collaborators{
		Messenger: &MockMessenger{},
		Generator: &MockTextGenerator{},
		Disabler:  &MockAutomationDisabler{},
		Subjects:  &MockSubjectDirectory{},
	}
}

// Protocol returns the mocks as protocol.Collaborators.
func (c *Collaborators) Protocol() protocol.Collaborators {
	return protocol.Collaborators{
		Messenger:     c.Messenger,
		TextGenerator: c.Generator,
		Disabler:      c.Disabler,
		Subjects:      c.Subjects,
	}
}

// AssertExpectations asserts every mock.
func (c *Collaborators) AssertExpectations(t mock.TestingT) {
	c.Messenger.AssertExpectations(t)
	c.Generator.AssertExpectations(t)
	c.Disabler.AssertExpectations(t)
	c.Subjects.AssertExpectations(t)
}
