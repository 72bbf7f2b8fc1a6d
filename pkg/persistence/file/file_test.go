package file_test

import (
	"context"
	"testing"

	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/persistence/persistencetest"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		t.Helper()

		return file.NewPersistence("file://" + t.TempDir())
	})
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, file.NewPersistence(t.TempDir()).HealthCheck(ctx))
	assert.Error(t, file.NewPersistence(t.TempDir()+"/missing").HealthCheck(ctx))
}

func TestRejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	definition := testutil.NurtureDefinition(testutil.WithID("../escape"))
	require.Error(t, p.WorkflowRepository().Save(ctx, definition))

	_, err := p.WorkflowRepository().GetByID(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	_, err = p.ExecutionRepository().GetByID(ctx, "a/b")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}
