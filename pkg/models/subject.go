package models

import "time"

// MessageDirection tells whether a conversation message came from or went to the subject.
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// ConversationMessage is one entry of a subject's recent conversation.
type ConversationMessage struct {
	Direction MessageDirection `json:"direction"`
	Content   string           `json:"content"`
	SentAt    time.Time        `json:"sent_at"`
}

// Subject is the read-only view of a lead that the engine needs.
// Identity and profile data are owned by the CRM, not by the engine.
type Subject struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name,omitempty"`
	Stage                string                `json:"stage,omitempty"`
	LastInboundMessageAt *time.Time            `json:"last_inbound_message_at,omitempty"`
	Attributes           map[string]any        `json:"attributes,omitempty"`
	RecentMessages       []ConversationMessage `json:"recent_messages,omitempty"`
}
