// Package schema validates evaluation results against the published JSON
// schema before they leave the service.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"speech-practice-evaluator/internal/models"
)

//go:embed result.schema.json
var resultSchemaJSON []byte

const resultSchemaName = "result.schema.json"

// ErrInvalidResult wraps every schema violation.
var ErrInvalidResult = errors.New("result does not match schema")

var printer = message.NewPrinter(language.English)

// Validator checks evaluation results against the embedded schema.
type Validator struct {
	result *jsonschema.Schema
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(resultSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", resultSchemaName, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resultSchemaName, doc); err != nil {
		return nil, fmt.Errorf("add %s: %w", resultSchemaName, err)
	}
	sch, err := c.Compile(resultSchemaName)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", resultSchemaName, err)
	}
	return &Validator{result: sch}, nil
}

// ValidateResult validates r as it would be serialized.
func (v *Validator) ValidateResult(r models.EvaluationResult) error {
	return v.Validate(r)
}

// Validate serializes event to JSON and validates it against the result
// schema.
func (v *Validator) Validate(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	err = v.result.Validate(inst)
	if err == nil {
		log.Debug().Msg("Result validated")
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate: %w", err)
	}
	var problems []string
	collect(ve, &problems)
	return fmt.Errorf("%w: %s", ErrInvalidResult, strings.Join(problems, "; "))
}

func collect(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collect(c, out)
	}
}
