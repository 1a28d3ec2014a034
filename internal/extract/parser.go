package extract

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"qcvoice/internal/record"
)

// Parse locates the first balanced JSON object embedded anywhere in raw
// (tolerating surrounding prose), decodes it, and validates the minimum
// contract: a known action tag and a non-empty reply. It returns nil on
// any failure; nil is the explicit route-to-fallback signal.
func Parse(raw string) *Response {
	for _, candidate := range balancedObjects(raw) {
		resp := decodeResponse(candidate)
		if resp != nil {
			return resp
		}
	}
	return nil
}

// decodeResponse unmarshals one candidate object, repairing malformed JSON
// once before giving up, then sanitizes and validates it.
func decodeResponse(candidate string) *Response {
	var payload struct {
		Action     string                     `json:"action"`
		Fields     map[string]json.RawMessage `json:"fields"`
		Reply      string                     `json:"reply"`
		Missing    []string                   `json:"missing_fields"`
		Complete   bool                       `json:"is_complete"`
		TotalScore int                        `json:"total_score"`
		Grade      string                     `json:"grade"`
	}

	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil
		}
	}

	action := Action(strings.ToLower(strings.TrimSpace(payload.Action)))
	if !validAction(action) {
		return nil
	}
	if strings.TrimSpace(payload.Reply) == "" {
		return nil
	}

	fields := record.Partial{}
	for name, rawEntry := range payload.Fields {
		key := record.Field(strings.ToLower(strings.TrimSpace(name)))
		if !record.IsValidField(string(key)) {
			continue
		}
		entry, ok := decodeEntry(rawEntry)
		if !ok {
			continue
		}
		fields[key] = entry.Clamp()
	}

	missing := make([]record.Field, 0, len(payload.Missing))
	for _, name := range payload.Missing {
		key := record.Field(strings.ToLower(strings.TrimSpace(name)))
		if record.IsValidField(string(key)) {
			missing = append(missing, key)
		}
	}

	return &Response{
		Action:     action,
		Fields:     fields,
		Reply:      strings.TrimSpace(payload.Reply),
		Missing:    record.SortedFields(missing),
		Complete:   payload.Complete,
		TotalScore: payload.TotalScore,
		Grade:      payload.Grade,
	}
}

// decodeEntry accepts either {"score":n,"notes":[...]} or a bare number.
func decodeEntry(raw json.RawMessage) (record.ScoreEntry, bool) {
	var entry record.ScoreEntry
	if err := json.Unmarshal(raw, &entry); err == nil {
		return entry, true
	}

	var score float64
	if err := json.Unmarshal(raw, &score); err == nil {
		return record.ScoreEntry{Score: int(score)}, true
	}

	return record.ScoreEntry{}, false
}

// balancedObjects yields every top-level balanced {...} span in raw, in
// order of appearance, with JSON string/escape awareness.
func balancedObjects(raw string) []string {
	var spans []string

	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			switch ch {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, raw[start:i+1])
				start = -1
			}
		}
	}

	return spans
}
