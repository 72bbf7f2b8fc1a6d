package events

import (
	"fmt"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LeadStageChanged is published when a lead moves to another pipeline stage.
type LeadStageChanged struct {
	BaseEvent

	SubjectID   string         `json:"subject_id" validate:"required"`
	ChannelID   string         `json:"channel_id"`
	FromStage   string         `json:"from_stage,omitempty"`
	Stage       string         `json:"stage"      validate:"required"`
	ContextData map[string]any `json:"context_data,omitempty"`
}

func (e LeadStageChanged) GetType() EventType {
	return LeadStageChangedEvent
}

func (e LeadStageChanged) Validate() error {
	err := validate.Struct(e)
	if err != nil {
		return fmt.Errorf("invalid %s event: %w", LeadStageChangedEvent, err)
	}

	return nil
}

// TriggerEvent converts the event to the form trigger nodes match against.
func (e LeadStageChanged) TriggerEvent() models.TriggerEvent {
	contextData := copyContext(e.ContextData)
	contextData["stage"] = e.Stage

	if e.FromStage != "" {
		contextData["from_stage"] = e.FromStage
	}

	return models.TriggerEvent{
		Type:        models.TriggerEventStageChanged,
		TenantID:    e.TenantID,
		SubjectID:   e.SubjectID,
		ChannelID:   e.ChannelID,
		Stage:       e.Stage,
		ContextData: contextData,
	}
}

// LeadPurchaseCompleted is published when a lead completes an order.
type LeadPurchaseCompleted struct {
	BaseEvent

	SubjectID   string         `json:"subject_id" validate:"required"`
	ChannelID   string         `json:"channel_id"`
	ProductID   string         `json:"product_id" validate:"required"`
	OrderID     string         `json:"order_id,omitempty"`
	Amount      float64        `json:"amount,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	ContextData map[string]any `json:"context_data,omitempty"`
}

func (e LeadPurchaseCompleted) GetType() EventType {
	return LeadPurchaseCompletedEvent
}

func (e LeadPurchaseCompleted) Validate() error {
	err := validate.Struct(e)
	if err != nil {
		return fmt.Errorf("invalid %s event: %w", LeadPurchaseCompletedEvent, err)
	}

	return nil
}

func (e LeadPurchaseCompleted) TriggerEvent() models.TriggerEvent {
	contextData := copyContext(e.ContextData)
	contextData["product_id"] = e.ProductID

	if e.OrderID != "" {
		contextData["order_id"] = e.OrderID
	}

	if e.Amount != 0 {
		contextData["amount"] = e.Amount
		contextData["currency"] = e.Currency
	}

	return models.TriggerEvent{
		Type:        models.TriggerEventPurchase,
		TenantID:    e.TenantID,
		SubjectID:   e.SubjectID,
		ChannelID:   e.ChannelID,
		ProductID:   e.ProductID,
		ContextData: contextData,
	}
}

func copyContext(source map[string]any) map[string]any {
	contextData := make(map[string]any, len(source)+2)
	for k, v := range source {
		contextData[k] = v
	}

	return contextData
}
