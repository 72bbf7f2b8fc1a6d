package nodes

import "github.com/dukex/leadflow/pkg/models"

// Descriptor documents a node type for editors and API clients.
type Descriptor struct {
	Type        models.NodeType    `json:"type"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Branches    []string           `json:"branches,omitempty"`
	Schema      *models.JSONSchema `json:"schema"`
}

var descriptors = []Descriptor{
	{
		Type:        models.NodeTypeTrigger,
		Name:        "Trigger",
		Description: "Entry point started by a stage change, a purchase or a manual test run",
	},
	{
		Type:        models.NodeTypeMessage,
		Name:        "Message",
		Description: "Sends static content, or content generated from an instruction and the recent conversation",
	},
	{
		Type:        models.NodeTypeWait,
		Name:        "Wait",
		Description: "Suspends the execution for an amount of minutes, hours or days",
	},
	{
		Type:        models.NodeTypeSmartCondition,
		Name:        "Smart condition",
		Description: "Branches on a recent reply, a natural-language rule or an expression",
		Branches:    []string{models.BranchTrue, models.BranchFalse},
	},
	{
		Type:        models.NodeTypeStopAutomation,
		Name:        "Stop automation",
		Description: "Disables further automation for the lead and stops the execution",
	},
}

// Catalog lists every node type the executor handles.
func Catalog() []Descriptor {
	catalog := make([]Descriptor, 0, len(descriptors))

	for _, d := range descriptors {
		schema, _ := models.NodeSchema(d.Type)
		d.Schema = schema
		catalog = append(catalog, d)
	}

	return catalog
}
