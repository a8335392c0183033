package extract

import (
	"context"
	"fmt"

	"github.com/dgallion1/taxgest/internal/taxreturn"
)

// ExtractRecord issues one schema-constrained extraction call for a chunk
// and parses the response into a partial record.
func ExtractRecord(ctx context.Context, capability Capability, chunk []byte) (taxreturn.Record, error) {
	text, err := capability.Complete(ctx, Request{
		Purpose:  PurposeExtract,
		Document: chunk,
		Prompt:   ExtractionPrompt,
		Schema:   RecordSchema(),
	})
	if err != nil {
		return taxreturn.Record{}, fmt.Errorf("%w: %w", ErrExtractionCallFailed, err)
	}
	return ParseRecord(text)
}
