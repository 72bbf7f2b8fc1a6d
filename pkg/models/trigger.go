package models

// TriggerEvent is an occurrence that may start executions of published definitions.
type TriggerEvent struct {
	Type        TriggerEventType `json:"type"`
	TenantID    string           `json:"tenant_id"`
	SubjectID   string           `json:"subject_id"`
	ChannelID   string           `json:"channel_id"`
	Stage       string           `json:"stage,omitempty"`
	ProductID   string           `json:"product_id,omitempty"`
	ContextData map[string]any   `json:"context_data,omitempty"`
}

// Matches reports whether the trigger should fire for event. Empty stage or
// product filters match any value.
func (t *TriggerConfig) Matches(event TriggerEvent) bool {
	if t.Event != event.Type {
		return false
	}

	switch t.Event {
	case TriggerEventStageChanged:
		return t.Stage == "" || t.Stage == event.Stage
	case TriggerEventPurchase:
		return t.ProductID == "" || t.ProductID == event.ProductID
	default:
		return true
	}
}
