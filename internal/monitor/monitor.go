// Package monitor validates inbound request bodies against JSON schemas
// before they reach the orchestrators.
package monitor

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/payment_request.json
var paymentRequestSchema []byte

// ContractMonitor validates incoming requests against a JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor loads the schema at schemaPath. The path should be
// absolute or relative to the working directory.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + schemaPath))
	if err != nil {
		return nil, fmt.Errorf("error loading or compiling schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// NewContractMonitorFromJSON compiles an in-memory schema document.
func NewContractMonitorFromJSON(schemaJSON []byte) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("error compiling schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// NewPaymentRequestMonitor validates POST /payments bodies.
func NewPaymentRequestMonitor() (*ContractMonitor, error) {
	return NewContractMonitorFromJSON(paymentRequestSchema)
}

// Validate validates the given request body against the loaded JSON schema.
// It returns true if valid, or false and a list of validation errors if invalid.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, errors, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
