package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// formatOf guesses the encoding of a definition file from its extension.
func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func loadDefinition(path string) (*models.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	definition, err := decodeDefinition(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if definition.Status == "" {
		definition.Status = models.WorkflowStatusDraft
	}

	return definition, nil
}

// decodeDefinition decodes JSON or YAML. YAML goes through JSON so node
// configs get the same schema validation.
func decodeDefinition(data []byte, format string) (*models.WorkflowDefinition, error) {
	switch format {
	case formatJSON:
	case formatYAML:
		var document any

		err := yaml.Unmarshal(data, &document)
		if err != nil {
			return nil, err
		}

		data, err = json.Marshal(document)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	var definition models.WorkflowDefinition

	err := json.Unmarshal(data, &definition)
	if err != nil {
		return nil, err
	}

	return &definition, nil
}

func encodeDefinition(w io.Writer, definition *models.WorkflowDefinition, format string) error {
	data, err := json.MarshalIndent(definition, "", "  ")
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		_, err = fmt.Fprintln(w, string(data))

		return err
	case formatYAML:
		var document any

		err = json.Unmarshal(data, &document)
		if err != nil {
			return err
		}

		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		err = encoder.Encode(document)
		if err != nil {
			return err
		}

		return encoder.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
