// Package reconstruct rebuilds a result table from a provider output document.
package reconstruct

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"batchforge/internal/domain"
)

// Result is the reconstructed table plus line accounting.
type Result struct {
	Rows []domain.ResultRow
	// Lines counts non-blank lines in the document.
	Lines int
	// Skipped counts lines that were not valid JSON or carried no custom_id.
	Skipped int
	// Duplicates counts lines whose custom_id had already been seen.
	Duplicates int
}

type outputLine struct {
	CustomID string          `json:"custom_id"`
	Response json.RawMessage `json:"response"`
}

type outputResponse struct {
	Body struct {
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"body"`
}

// Parse reconstructs rows from raw, ordered by the numeric suffix of their
// custom_id. Lines are independent: bad lines are skipped, a missing answer
// gives an empty Text, and the last line for a repeated custom_id wins.
//
// A blank document is a valid empty result. A document with content but no
// usable line returns a *domain.ParseError carrying raw.
func Parse(raw []byte) (*Result, error) {
	res := &Result{}
	byID := make(map[string]string)

	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		res.Lines++

		var ol outputLine
		if err := json.Unmarshal(line, &ol); err != nil || ol.CustomID == "" {
			res.Skipped++
			continue
		}
		if _, seen := byID[ol.CustomID]; seen {
			res.Duplicates++
		}
		byID[ol.CustomID] = extractContent(ol.Response)
	}

	if res.Lines > 0 && len(byID) == 0 {
		return nil, &domain.ParseError{Lines: res.Lines, Raw: raw}
	}

	res.Rows = make([]domain.ResultRow, 0, len(byID))
	for id, text := range byID {
		res.Rows = append(res.Rows, domain.ResultRow{CustomID: id, Text: text})
	}
	sort.Slice(res.Rows, func(i, j int) bool {
		return lessCustomID(res.Rows[i].CustomID, res.Rows[j].CustomID)
	})
	return res, nil
}

// extractContent returns response.body.choices[0].message.content, or "" when
// any part of that path is missing or not a string.
func extractContent(response json.RawMessage) string {
	if len(response) == 0 {
		return ""
	}
	var resp outputResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return ""
	}
	if len(resp.Body.Choices) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(resp.Body.Choices[0].Message.Content, &text); err != nil {
		return ""
	}
	return text
}

// numericSuffix returns the digits after the last '-' of ids like
// "request-12", without leading zeros. Anything but a plain digit run fails.
func numericSuffix(id string) (string, bool) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 || i == len(id)-1 {
		return "", false
	}
	digits := id[i+1:]
	if strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return "", false
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	return digits, true
}

// compareDigits orders two digit strings without leading zeros by value,
// whatever their length.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

// lessCustomID orders numeric-suffix ids ascending, then everything else lexically.
func lessCustomID(a, b string) bool {
	na, okA := numericSuffix(a)
	nb, okB := numericSuffix(b)
	switch {
	case okA && okB:
		if c := compareDigits(na, nb); c != 0 {
			return c < 0
		}
		return a < b
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}
