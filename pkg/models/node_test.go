package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_UnmarshalJSON_KnownTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		payload  string
		expected NodeConfig
	}{
		{
			name:     "trigger",
			payload:  `{"id":"t","type":"trigger","config":{"event":"stage_changed","stage":"qualified"}}`,
			expected: &TriggerConfig{Event: TriggerEventStageChanged, Stage: "qualified"},
		},
		{
			name:     "static message",
			payload:  `{"id":"m","type":"message","config":{"mode":"static","content":"Welcome"}}`,
			expected: &MessageConfig{Mode: MessageModeStatic, Content: "Welcome"},
		},
		{
			name:     "wait",
			payload:  `{"id":"w","type":"wait","config":{"amount":5,"unit":"minutes"}}`,
			expected: &WaitConfig{Amount: 5, Unit: WaitUnitMinutes},
		},
		{
			name:     "smart condition",
			payload:  `{"id":"c","type":"smart_condition","config":{"kind":"repliedRecently","recency_threshold":"2h"}}`,
			expected: &SmartConditionConfig{Kind: ConditionRepliedRecently, RecencyThreshold: "2h"},
		},
		{
			name:     "stop automation",
			payload:  `{"id":"s","type":"stop_automation","config":{"reason":"no reply"}}`,
			expected: &StopAutomationConfig{Reason: "no reply"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var node Node

			err := json.Unmarshal([]byte(tt.payload), &node)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node.Config)
			assert.Equal(t, tt.expected.NodeType(), node.Type)
		})
	}
}

func TestNode_UnmarshalJSON_UnknownTypeKeepsPayload(t *testing.T) {
	t.Parallel()

	var node Node

	err := json.Unmarshal([]byte(`{"id":"x","type":"send_sms_v2","config":{"sender":"ACME"}}`), &node)
	require.NoError(t, err)

	unknown, ok := node.Config.(*UnknownConfig)
	require.True(t, ok)
	assert.Equal(t, NodeType("send_sms_v2"), unknown.NodeType())
	assert.Equal(t, "ACME", unknown.Raw["sender"])
	assert.False(t, IsKnownNodeType(node.Type))

	encoded, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","name":"","type":"send_sms_v2","config":{"sender":"ACME"},"position_x":0,"position_y":0}`, string(encoded))
}

func TestNode_UnmarshalJSON_SchemaViolations(t *testing.T) {
	t.Parallel()

	payloads := map[string]string{
		"wait amount below one":  `{"id":"w","type":"wait","config":{"amount":0,"unit":"days"}}`,
		"wait unit not allowed":  `{"id":"w","type":"wait","config":{"amount":2,"unit":"weeks"}}`,
		"wait amount as string":  `{"id":"w","type":"wait","config":{"amount":"2","unit":"days"}}`,
		"wait amount too large":  `{"id":"w","type":"wait","config":{"amount":9999999,"unit":"minutes"}}`,
		"message without mode":   `{"id":"m","type":"message","config":{"content":"hi"}}`,
		"condition unknown kind": `{"id":"c","type":"smart_condition","config":{"kind":"sentiment"}}`,
		"trigger without event":  `{"id":"t","type":"trigger","config":{}}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var node Node

			err := json.Unmarshal([]byte(payload), &node)
			require.ErrorIs(t, err, ErrInvalidNodeConfig)
		})
	}
}

func TestNode_MarshalRoundTripKeepsTypedConfig(t *testing.T) {
	t.Parallel()

	original := Node{ID: "w", Name: "Wait a bit", Type: NodeTypeWait, Config: &WaitConfig{Amount: 3, Unit: WaitUnitHours}}

	encoded, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Node

	err = json.Unmarshal(encoded, &decoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestWaitConfig_Duration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Minute, (&WaitConfig{Amount: 5, Unit: WaitUnitMinutes}).Duration())
	assert.Equal(t, 2*time.Hour, (&WaitConfig{Amount: 2, Unit: WaitUnitHours}).Duration())
	assert.Equal(t, 72*time.Hour, (&WaitConfig{Amount: 3, Unit: WaitUnitDays}).Duration())
	assert.Equal(t, time.Duration(0), (&WaitConfig{Amount: 3, Unit: "fortnights"}).Duration())
	assert.Equal(t, MaxWait, (&WaitConfig{Amount: 200000, Unit: WaitUnitDays}).Duration())
}

func TestWaitConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, (&WaitConfig{Amount: 1825, Unit: WaitUnitDays}).Validate())
	require.NoError(t, (&WaitConfig{Amount: 2628000, Unit: WaitUnitMinutes}).Validate())
	require.ErrorIs(t, (&WaitConfig{Amount: 1826, Unit: WaitUnitDays}).Validate(), ErrWaitTooLong)
	require.ErrorIs(t, (&WaitConfig{Amount: 200000, Unit: WaitUnitDays}).Validate(), ErrWaitTooLong)
}

func TestSmartConditionConfig_Threshold(t *testing.T) {
	t.Parallel()

	threshold, err := (&SmartConditionConfig{}).Threshold()
	require.NoError(t, err)
	assert.Zero(t, threshold)

	threshold, err = (&SmartConditionConfig{RecencyThreshold: "90m"}).Threshold()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, threshold)

	_, err = (&SmartConditionConfig{RecencyThreshold: "-1h"}).Threshold()
	require.Error(t, err)
}

func TestExecution_IsDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&Execution{Status: ExecutionStatusPending, ScheduledFor: &past}).IsDue(now))
	assert.True(t, (&Execution{Status: ExecutionStatusPending, ScheduledFor: &now}).IsDue(now))
	assert.False(t, (&Execution{Status: ExecutionStatusPending, ScheduledFor: &future}).IsDue(now))
	assert.False(t, (&Execution{Status: ExecutionStatusPending}).IsDue(now))
	assert.True(t, (&Execution{Status: ExecutionStatusRunning, ClaimExpiresAt: &past}).IsDue(now))
	assert.False(t, (&Execution{Status: ExecutionStatusRunning, ClaimExpiresAt: &future}).IsDue(now))
	assert.False(t, (&Execution{Status: ExecutionStatusCompleted, ScheduledFor: &past}).IsDue(now))
}

func TestTriggerConfig_Matches(t *testing.T) {
	t.Parallel()

	stage := &TriggerConfig{Event: TriggerEventStageChanged, Stage: "qualified"}
	assert.True(t, stage.Matches(TriggerEvent{Type: TriggerEventStageChanged, Stage: "qualified"}))
	assert.False(t, stage.Matches(TriggerEvent{Type: TriggerEventStageChanged, Stage: "lost"}))
	assert.False(t, stage.Matches(TriggerEvent{Type: TriggerEventPurchase, Stage: "qualified"}))

	anyPurchase := &TriggerConfig{Event: TriggerEventPurchase}
	assert.True(t, anyPurchase.Matches(TriggerEvent{Type: TriggerEventPurchase, ProductID: "p-1"}))

	product := &TriggerConfig{Event: TriggerEventPurchase, ProductID: "p-2"}
	assert.False(t, product.Matches(TriggerEvent{Type: TriggerEventPurchase, ProductID: "p-1"}))
}
