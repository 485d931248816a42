package alert

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

// rawAlertSchema is the structural contract a raw alert has to meet before
// enrichment. Descriptive properties stay unvalidated on purpose.
const rawAlertSchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"geometry": {
			"type": ["object", "null"],
			"properties": {
				"type": {"type": "string"},
				"coordinates": {"type": "array"}
			},
			"required": ["type", "coordinates"]
		},
		"properties": {
			"type": "object",
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"affectedZones": {"type": "array", "items": {"type": "string"}}
			}
		}
	},
	"required": ["properties"]
}`

// ValidationMode controls what happens to raw alerts that do not match the
// schema.
type ValidationMode int

const (
	// ValidationStrict rejects invalid raw alerts.
	ValidationStrict ValidationMode = iota
	// ValidationWarnings logs the issues and lets the alert through.
	ValidationWarnings
	// ValidationDisabled skips validation entirely.
	ValidationDisabled
)

func ParseValidationMode(s string) (ValidationMode, error) {
	switch s {
	case "strict", "":
		return ValidationStrict, nil
	case "warnings":
		return ValidationWarnings, nil
	case "disabled":
		return ValidationDisabled, nil
	}
	return ValidationStrict, errors.Errorf("unknown validation mode %q", s)
}

// ValidationError reports the schema issues of one raw alert.
type ValidationError struct {
	Issues []string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("raw alert validation issues: %v", err.Issues)
}

// Validator checks raw alert documents against the structural schema.
type Validator struct {
	logger logrus.FieldLogger
	mode   ValidationMode
	schema *gojsonschema.Schema
}

func NewValidator(logger logrus.FieldLogger, mode ValidationMode) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(rawAlertSchema))
	if err != nil {
		return nil, errors.Wrap(err, "compiling raw alert schema")
	}
	return &Validator{logger: logger, mode: mode, schema: schema}, nil
}

// Validate checks one raw alert document. The returned error is a
// ValidationError in strict mode; warnings mode only logs.
func (v *Validator) Validate(document []byte) error {
	if v.mode == ValidationDisabled {
		return nil
	}
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		// Validator trouble is not a reason to block enrichment.
		v.logger.Warning("Raw alert validation could not run: ", err)
		return nil
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	verr := ValidationError{Issues: issues}
	if v.mode == ValidationWarnings {
		v.logger.Warning("Raw alert failed validation: ", verr)
		return nil
	}
	return verr
}
