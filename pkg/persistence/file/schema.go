package file

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// templateSchema is the structural contract for template documents on
// disk. It rejects documents the editor could not have produced; the
// stage graph and validator handle semantic checks afterwards.
const templateSchema = `{
  "type": "object",
  "required": ["id", "organization_id", "name", "type", "stages"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "organization_id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 3},
    "type": {"enum": ["intake", "project", "operational-readiness", "custom"]},
    "stages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["intake-stage", "phase", "approval-gate", "readiness-section"]},
          "required": {"type": "boolean"},
          "approvers": {"type": "array", "items": {"type": "string"}},
          "automations": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "trigger": {"type": "object"},
                "action": {"type": "object"},
                "enabled": {"type": "boolean"}
              }
            }
          }
        }
      }
    },
    "settings": {
      "type": "object",
      "properties": {
        "allow_parallel_execution": {"type": "boolean"},
        "auto_progress_on_approval": {"type": "boolean"},
        "require_all_approvals": {"type": "boolean"},
        "notify_on_stage_change": {"type": "boolean"}
      }
    }
  }
}`

var ErrInvalidTemplateDocument = errors.New("template document failed schema validation")

func validateTemplateDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(templateSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("template schema validation errored: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidTemplateDocument, strings.Join(details, "; "))
}
