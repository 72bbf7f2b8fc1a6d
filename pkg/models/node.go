package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType identifies the behavior of a node.
type NodeType string

const (
	NodeTypeTrigger        NodeType = "trigger"
	NodeTypeMessage        NodeType = "message"
	NodeTypeWait           NodeType = "wait"
	NodeTypeSmartCondition NodeType = "smart_condition"
	NodeTypeStopAutomation NodeType = "stop_automation"
)

var (
	// ErrInvalidNodeConfig is returned when a node payload does not satisfy its type's schema.
	ErrInvalidNodeConfig = errors.New("invalid node config")

	// ErrNodeConfigMismatch is returned when a node's config does not belong to its declared type.
	ErrNodeConfigMismatch = errors.New("node config does not match node type")

	// ErrWaitTooLong is returned when a wait node exceeds MaxWait.
	ErrWaitTooLong = errors.New("wait exceeds the maximum duration")
)

// Node is a single step in a workflow graph. Config holds exactly one of the
// typed payloads declared in this package; which one is determined by Type.
type Node struct {
	ID        string     `json:"id"         validate:"required"`
	Name      string     `json:"name"`
	Type      NodeType   `json:"type"       validate:"required"`
	Config    NodeConfig `json:"config"`
	PositionX int        `json:"position_x"`
	PositionY int        `json:"position_y"`
}

// NodeConfig is the closed set of node payloads. Only types in this package implement it.
type NodeConfig interface {
	NodeType() NodeType
	isNodeConfig()
}

// TriggerEventType is the kind of event that starts an execution.
type TriggerEventType string

const (
	TriggerEventStageChanged TriggerEventType = "stage_changed"
	TriggerEventPurchase     TriggerEventType = "purchase"
	TriggerEventManual       TriggerEventType = "manual"
)

// TriggerConfig is the payload of the unique entry node.
type TriggerConfig struct {
	Event     TriggerEventType `json:"event"                validate:"required,oneof=stage_changed purchase manual"`
	Stage     string           `json:"stage,omitempty"`
	ProductID string           `json:"product_id,omitempty"`
}

// MessageMode selects how message content is produced.
type MessageMode string

const (
	MessageModeStatic    MessageMode = "static"
	MessageModeGenerated MessageMode = "generated"
)

// MessageConfig is the payload of a message node.
type MessageConfig struct {
	Mode           MessageMode `json:"mode"                      validate:"required,oneof=static generated"`
	Content        string      `json:"content,omitempty"         validate:"required_if=Mode static"`
	PromptTemplate string      `json:"prompt_template,omitempty" validate:"required_if=Mode generated"`
}

// WaitUnit is the unit a wait amount is expressed in.
type WaitUnit string

const (
	WaitUnitMinutes WaitUnit = "minutes"
	WaitUnitHours   WaitUnit = "hours"
	WaitUnitDays    WaitUnit = "days"
)

// WaitConfig is the payload of a wait node.
type WaitConfig struct {
	Amount int      `json:"amount" validate:"required,min=1"`
	Unit   WaitUnit `json:"unit"   validate:"required,oneof=minutes hours days"`
}

// MaxWait bounds a single wait node.
const MaxWait = 5 * 365 * 24 * time.Hour

func (u WaitUnit) duration() time.Duration {
	switch u {
	case WaitUnitMinutes:
		return time.Minute
	case WaitUnitHours:
		return time.Hour
	case WaitUnitDays:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Validate rejects waits longer than MaxWait.
func (w *WaitConfig) Validate() error {
	unit := w.Unit.duration()
	if unit > 0 && w.Amount > int(MaxWait/unit) {
		return fmt.Errorf("%w: %d %s, at most %d allowed", ErrWaitTooLong, w.Amount, w.Unit, MaxWait/unit)
	}

	return nil
}

// Duration converts the wait to a time.Duration, capped at MaxWait.
func (w *WaitConfig) Duration() time.Duration {
	unit := w.Unit.duration()
	if unit == 0 {
		return 0
	}

	if w.Amount > int(MaxWait/unit) {
		return MaxWait
	}

	return time.Duration(w.Amount) * unit
}

// ConditionKind selects the evaluation strategy of a smart condition.
type ConditionKind string

const (
	ConditionRepliedRecently     ConditionKind = "repliedRecently"
	ConditionNaturalLanguageRule ConditionKind = "naturalLanguageRule"
	ConditionExpression          ConditionKind = "expression"
)

// SmartConditionConfig is the payload of a branching node.
type SmartConditionConfig struct {
	Kind             ConditionKind `json:"kind"                        validate:"required,oneof=repliedRecently naturalLanguageRule expression"`
	RuleText         string        `json:"rule_text,omitempty"         validate:"required_if=Kind naturalLanguageRule"`
	RecencyThreshold string        `json:"recency_threshold,omitempty"`
	Expression       string        `json:"expression,omitempty"        validate:"required_if=Kind expression"`
}

// Threshold parses RecencyThreshold. It returns zero when no override is configured.
func (c *SmartConditionConfig) Threshold() (time.Duration, error) {
	if c.RecencyThreshold == "" {
		return 0, nil
	}

	threshold, err := time.ParseDuration(c.RecencyThreshold)
	if err != nil {
		return 0, fmt.Errorf("invalid recency threshold %q: %w", c.RecencyThreshold, err)
	}

	if threshold <= 0 {
		return 0, fmt.Errorf("recency threshold must be positive, got %q", c.RecencyThreshold)
	}

	return threshold, nil
}

// StopAutomationConfig is the payload of a node that ends automation for the subject.
type StopAutomationConfig struct {
	Reason string `json:"reason"`
}

// UnknownConfig keeps the raw payload of a node type this version does not recognise.
type UnknownConfig struct {
	Type NodeType       `json:"-"`
	Raw  map[string]any `json:"-"`
}

func (*TriggerConfig) NodeType() NodeType        { return NodeTypeTrigger }
func (*MessageConfig) NodeType() NodeType        { return NodeTypeMessage }
func (*WaitConfig) NodeType() NodeType           { return NodeTypeWait }
func (*SmartConditionConfig) NodeType() NodeType { return NodeTypeSmartCondition }
func (*StopAutomationConfig) NodeType() NodeType { return NodeTypeStopAutomation }
func (u *UnknownConfig) NodeType() NodeType      { return u.Type }

func (*TriggerConfig) isNodeConfig()        {}
func (*MessageConfig) isNodeConfig()        {}
func (*WaitConfig) isNodeConfig()           {}
func (*SmartConditionConfig) isNodeConfig() {}
func (*StopAutomationConfig) isNodeConfig() {}
func (*UnknownConfig) isNodeConfig()        {}

// IsKnownNodeType reports whether the engine has a dedicated handler for t.
func IsKnownNodeType(t NodeType) bool {
	switch t {
	case NodeTypeTrigger, NodeTypeMessage, NodeTypeWait, NodeTypeSmartCondition, NodeTypeStopAutomation:
		return true
	default:
		return false
	}
}

type nodeJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      NodeType        `json:"type"`
	Config    json.RawMessage `json:"config"`
	PositionX int             `json:"position_x"`
	PositionY int             `json:"position_y"`
}

// MarshalJSON writes the node with its typed config under "config".
func (n Node) MarshalJSON() ([]byte, error) {
	config, err := EncodeNodeConfig(n.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config of node %s: %w", n.ID, err)
	}

	return json.Marshal(nodeJSON{
		ID:        n.ID,
		Name:      n.Name,
		Type:      n.Type,
		Config:    config,
		PositionX: n.PositionX,
		PositionY: n.PositionY,
	})
}

// UnmarshalJSON decodes the node and its config. Known types are checked
// against their JSON schema before being decoded into the typed payload.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	config, err := DecodeNodeConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	*n = Node{
		ID:        raw.ID,
		Name:      raw.Name,
		Type:      raw.Type,
		Config:    config,
		PositionX: raw.PositionX,
		PositionY: raw.PositionY,
	}

	return nil
}

// EncodeNodeConfig is the inverse of DecodeNodeConfig.
func EncodeNodeConfig(config NodeConfig) (json.RawMessage, error) {
	switch c := config.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case *UnknownConfig:
		if c.Raw == nil {
			return json.RawMessage("{}"), nil
		}

		return json.Marshal(c.Raw)
	default:
		return json.Marshal(c)
	}
}

// DecodeNodeConfig turns a raw JSON payload into the typed config for nodeType.
func DecodeNodeConfig(nodeType NodeType, payload json.RawMessage) (NodeConfig, error) {
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("{}")
	}

	var config NodeConfig

	switch nodeType {
	case NodeTypeTrigger:
		config = &TriggerConfig{}
	case NodeTypeMessage:
		config = &MessageConfig{}
	case NodeTypeWait:
		config = &WaitConfig{}
	case NodeTypeSmartCondition:
		config = &SmartConditionConfig{}
	case NodeTypeStopAutomation:
		config = &StopAutomationConfig{}
	default:
		rawMap := make(map[string]any)

		err := json.Unmarshal(payload, &rawMap)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
		}

		return &UnknownConfig{Type: nodeType, Raw: rawMap}, nil
	}

	err := ValidateConfigSchema(nodeType, payload)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(payload, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNodeConfig, err)
	}

	return config, nil
}
