package main

import (
	"bytes"
	"testing"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOf(t *testing.T) {
	assert.Equal(t, formatYAML, formatOf("flows/nurture.yaml"))
	assert.Equal(t, formatYAML, formatOf("flows/nurture.YML"))
	assert.Equal(t, formatJSON, formatOf("flows/nurture.json"))
	assert.Equal(t, formatJSON, formatOf("flows/nurture"))
}

func TestLoadDefinition_YAML(t *testing.T) {
	definition, err := loadDefinition("testdata/nurture.yaml")
	require.NoError(t, err)

	assert.Equal(t, "acme", definition.TenantID)
	assert.Equal(t, models.WorkflowStatusDraft, definition.Status)
	require.Len(t, definition.Nodes, 6)
	require.Len(t, definition.Edges, 5)

	assert.Equal(t, &models.TriggerConfig{Event: models.TriggerEventStageChanged, Stage: "qualified"}, definition.Nodes[0].Config)
	assert.Equal(t, &models.WaitConfig{Amount: 1, Unit: models.WaitUnitDays}, definition.Nodes[2].Config)
	assert.Equal(t, models.BranchTrue, definition.Edges[3].BranchHandle)
}

func TestLoadDefinition_JSON(t *testing.T) {
	definition, err := loadDefinition("testdata/purchase.json")
	require.NoError(t, err)

	assert.Equal(t, "Course onboarding", definition.Name)
	assert.Equal(t, &models.TriggerConfig{Event: models.TriggerEventPurchase, ProductID: "course"}, definition.Nodes[0].Config)
}

func TestLoadDefinition_Errors(t *testing.T) {
	_, err := loadDefinition("testdata/missing.yaml")
	require.Error(t, err)

	_, err = loadDefinition("testdata/bad_wait.yaml")
	require.ErrorIs(t, err, models.ErrInvalidNodeConfig)

	_, err = decodeDefinition([]byte("name: x"), "toml")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeDefinition_RoundTrip(t *testing.T) {
	original := testutil.NurtureDefinition()

	for _, format := range []string{formatJSON, formatYAML} {
		t.Run(format, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, encodeDefinition(&out, original, format))

			decoded, err := decodeDefinition(out.Bytes(), format)
			require.NoError(t, err)

			assert.Equal(t, original.ID, decoded.ID)
			assert.Equal(t, original.Status, decoded.Status)
			require.Len(t, decoded.Nodes, len(original.Nodes))

			for i, node := range original.Nodes {
				assert.Equal(t, node.Config, decoded.Nodes[i].Config, node.ID)
			}
		})
	}
}
