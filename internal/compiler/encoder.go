package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"batchforge/internal/domain"
)

// Encode serializes requests as one compact JSON object per line, joined by
// newlines with no trailing newline. Non-ASCII text is written as-is and
// HTML-sensitive characters are not escaped, so identical input always
// yields identical bytes.
func Encode(requests []domain.CompiledRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i := range requests {
		if err := enc.Encode(&requests[i]); err != nil {
			return nil, fmt.Errorf("encoding request %s: %w", requests[i].CustomID, err)
		}
	}
	// json.Encoder terminates every value with '\n'; drop the final one.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Build compiles records and encodes them in one step.
func Build(records []domain.Record, p Params) ([]byte, error) {
	reqs, err := Compile(records, p)
	if err != nil {
		return nil, err
	}
	return Encode(reqs)
}
