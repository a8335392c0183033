package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dgallion1/taxgest/internal/taxreturn"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	recordSchemaOnce     sync.Once
	recordSchemaCompiled *jsonschema.Schema
	recordSchemaErr      error
)

func compiledRecordSchema() (*jsonschema.Schema, error) {
	recordSchemaOnce.Do(func() {
		b, err := json.Marshal(RecordSchema())
		if err != nil {
			recordSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("record.json", bytes.NewReader(b)); err != nil {
			recordSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		recordSchemaCompiled, recordSchemaErr = compiler.Compile("record.json")
	})
	return recordSchemaCompiled, recordSchemaErr
}

// ParseRecord turns an extraction response into a record. The first JSON
// object in text is sanitized with NormalizeAmounts and validated against
// RecordSchema before decoding, and the decoded record is normalized so that
// no list repeats a label or state. Every failure wraps
// ErrExtractionSchemaViolation.
func ParseRecord(text string) (taxreturn.Record, error) {
	if strings.TrimSpace(text) == "" {
		return taxreturn.Record{}, fmt.Errorf("%w: empty response", ErrExtractionSchemaViolation)
	}
	raw, ok := FindJSON(text, '{')
	if !ok {
		return taxreturn.Record{}, fmt.Errorf("%w: no JSON object in response", ErrExtractionSchemaViolation)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return taxreturn.Record{}, fmt.Errorf("%w: %w", ErrExtractionSchemaViolation, err)
	}
	doc = NormalizeAmounts(doc)

	schema, err := compiledRecordSchema()
	if err != nil {
		return taxreturn.Record{}, fmt.Errorf("record schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return taxreturn.Record{}, fmt.Errorf("%w: %w", ErrExtractionSchemaViolation, err)
	}

	clean, err := json.Marshal(doc)
	if err != nil {
		return taxreturn.Record{}, fmt.Errorf("%w: %w", ErrExtractionSchemaViolation, err)
	}
	var rec taxreturn.Record
	if err := json.Unmarshal(clean, &rec); err != nil {
		return taxreturn.Record{}, fmt.Errorf("%w: %w", ErrExtractionSchemaViolation, err)
	}
	return taxreturn.Normalize(rec), nil
}
