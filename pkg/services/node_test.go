package services

import (
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence/file"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNodeService(t *testing.T, definition *models.WorkflowDefinition) *Node {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), definition))

	return NewNode(store, testLogger())
}

func TestNode_CreateNode(t *testing.T) {
	definition := testutil.NurtureDefinition(testutil.WithStatus(models.WorkflowStatusDraft))
	service := newNodeService(t, definition)

	node, err := service.CreateNode(t.Context(), definition.ID, &CreateNodeRequest{
		Name:   "Follow up",
		Config: &models.WaitConfig{Amount: 2, Unit: models.WaitUnitHours},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)
	assert.Equal(t, models.NodeTypeWait, node.Type)

	fetched, err := service.GetNode(t.Context(), definition.ID, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Follow up", fetched.Name)
	assert.Equal(t, &models.WaitConfig{Amount: 2, Unit: models.WaitUnitHours}, fetched.Config)

	_, err = service.CreateNode(t.Context(), definition.ID, &CreateNodeRequest{ID: node.ID, Config: &models.StopAutomationConfig{}})
	require.ErrorIs(t, err, ErrNodeAlreadyExists)

	_, err = service.CreateNode(t.Context(), definition.ID, &CreateNodeRequest{Name: "No config"})
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestNode_UpdateNode(t *testing.T) {
	definition := testutil.NurtureDefinition(testutil.WithStatus(models.WorkflowStatusDraft))
	service := newNodeService(t, definition)

	updated, err := service.UpdateNode(t.Context(), definition.ID, "welcome", &UpdateNodeRequest{
		Name:      "Hello",
		Config:    &models.MessageConfig{Mode: models.MessageModeStatic, Content: "Hi there"},
		PositionX: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", updated.Name)
	assert.Equal(t, 10, updated.PositionX)

	_, err = service.UpdateNode(t.Context(), definition.ID, "welcome", &UpdateNodeRequest{Config: &models.StopAutomationConfig{}})
	require.ErrorIs(t, err, ErrInvalidNode)

	_, err = service.UpdateNode(t.Context(), definition.ID, "ghost", &UpdateNodeRequest{})
	require.ErrorIs(t, err, ErrNodeNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestNode_DeleteNodeRemovesEdges(t *testing.T) {
	definition := testutil.NurtureDefinition(testutil.WithStatus(models.WorkflowStatusDraft))
	service := newNodeService(t, definition)

	require.NoError(t, service.DeleteNode(t.Context(), definition.ID, "replied"))

	stored, err := service.persistence.WorkflowRepository().GetByID(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 5)
	require.Len(t, stored.Edges, 2)

	for _, edge := range stored.Edges {
		assert.NotEqual(t, "replied", edge.SourceNodeID)
		assert.NotEqual(t, "replied", edge.TargetNodeID)
	}

	err = service.DeleteNode(t.Context(), definition.ID, "replied")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestNode_Edges(t *testing.T) {
	definition := testutil.CreateTestDefinition(
		[]*models.Node{
			testutil.TriggerNode("trigger", models.TriggerEventManual),
			testutil.RepliedRecentlyNode("replied"),
			testutil.StaticMessageNode("yes", "Great"),
			testutil.StopNode("no", "silent"),
		},
		nil,
		testutil.WithStatus(models.WorkflowStatusDraft),
	)
	service := newNodeService(t, definition)

	_, err := service.CreateEdge(t.Context(), definition.ID, &CreateEdgeRequest{SourceNodeID: "trigger", TargetNodeID: "replied"})
	require.NoError(t, err)

	trueEdge, err := service.CreateEdge(t.Context(), definition.ID, &CreateEdgeRequest{
		SourceNodeID: "replied", TargetNodeID: "yes", BranchHandle: models.BranchTrue,
	})
	require.NoError(t, err)

	_, err = service.CreateEdge(t.Context(), definition.ID, &CreateEdgeRequest{
		SourceNodeID: "replied", TargetNodeID: "no", BranchHandle: models.BranchFalse,
	})
	require.NoError(t, err)

	_, err = service.CreateEdge(t.Context(), definition.ID, &CreateEdgeRequest{
		SourceNodeID: "replied", TargetNodeID: "no", BranchHandle: models.BranchTrue,
	})
	require.ErrorIs(t, err, ErrEdgeAlreadyExists)

	_, err = service.CreateEdge(t.Context(), definition.ID, &CreateEdgeRequest{SourceNodeID: "ghost", TargetNodeID: "no"})
	require.ErrorIs(t, err, ErrInvalidEdge)

	require.NoError(t, service.DeleteEdge(t.Context(), definition.ID, trueEdge.ID))
	require.ErrorIs(t, service.DeleteEdge(t.Context(), definition.ID, trueEdge.ID), ErrEdgeNotFound)

	stored, err := service.persistence.WorkflowRepository().GetByID(t.Context(), definition.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Edges, 2)
}

func TestNode_PublishedWorkflowIsReadOnly(t *testing.T) {
	definition := testutil.NurtureDefinition()
	service := newNodeService(t, definition)

	_, err := service.CreateNode(t.Context(), definition.ID, &CreateNodeRequest{Config: &models.StopAutomationConfig{}})
	require.ErrorIs(t, err, ErrCannotModifyPublished)

	require.ErrorIs(t, service.DeleteNode(t.Context(), definition.ID, "welcome"), ErrCannotModifyPublished)
	require.ErrorIs(t, service.DeleteEdge(t.Context(), definition.ID, "welcome--wait"), ErrCannotModifyPublished)

	node, err := service.GetNode(t.Context(), definition.ID, "welcome")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeMessage, node.Type)
}
