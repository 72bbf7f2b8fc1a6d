// Package logonly provides development collaborators that log instead of
// reaching external systems. Text generation is unavailable, so generated
// messages fall back to their instruction, and subjects are known only once
// registered with Put.
package logonly

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

var ErrTextGenerationUnavailable = errors.New("text generation is not available in log-only mode")

type Messenger struct {
	logger *slog.Logger
}

func (m *Messenger) Send(ctx context.Context, channelID, content string, hint protocol.DeliveryHint) error {
	m.logger.InfoContext(ctx, "Message send", "channel_id", channelID, "content", content, "hint", hint)

	return nil
}

type TextGenerator struct{}

func (TextGenerator) Complete(context.Context, string, protocol.SubjectContext) (string, error) {
	return "", ErrTextGenerationUnavailable
}

type Disabler struct {
	logger *slog.Logger
}

func (d *Disabler) DisableAutomation(ctx context.Context, subjectID, reason string) error {
	d.logger.InfoContext(ctx, "Automation disabled", "subject_id", subjectID, "reason", reason)

	return nil
}

// Subjects is an in-memory directory. Unknown ids resolve to a bare subject
// that never replied.
type Subjects struct {
	mu       sync.RWMutex
	subjects map[string]*models.Subject
}

func (s *Subjects) Put(subject *models.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subjects[subject.ID] = subject
}

func (s *Subjects) Subject(_ context.Context, subjectID string) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if subject, ok := s.subjects[subjectID]; ok {
		return subject, nil
	}

	return &models.Subject{ID: subjectID}, nil
}

func NewSubjects() *Subjects {
	return &Subjects{subjects: make(map[string]*models.Subject)}
}

// Collaborators returns a full log-only collaborator set sharing subjects.
func Collaborators(logger *slog.Logger, subjects *Subjects) protocol.Collaborators {
	logger = logger.With("module", "logonly_collaborators")

	return protocol.Collaborators{
		Messenger:     &Messenger{logger: logger},
		TextGenerator: TextGenerator{},
		Disabler:      &Disabler{logger: logger},
		Subjects:      subjects,
	}
}
