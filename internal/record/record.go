// Package record models the cumulative structured inspection result.
package record

import "sort"

// Field is one required inspection dimension.
type Field string

const (
	FieldAppearance    Field = "appearance"
	FieldSmell         Field = "smell"
	FieldSpecification Field = "specification"
	FieldWeight        Field = "weight"
	FieldPackaging     Field = "packaging"
)

// FieldMax is the maximum score a single field can carry.
const FieldMax = 20

// Fields returns the five required fields in their fixed inspection order.
func Fields() []Field {
	return []Field{
		FieldAppearance,
		FieldSmell,
		FieldSpecification,
		FieldWeight,
		FieldPackaging,
	}
}

// IsValidField reports whether name is one of the five inspection dimensions.
func IsValidField(name string) bool {
	switch Field(name) {
	case FieldAppearance, FieldSmell, FieldSpecification, FieldWeight, FieldPackaging:
		return true
	}
	return false
}

// ScoreEntry is one field's score plus free-text annotations.
type ScoreEntry struct {
	Score int      `json:"score"`
	Notes []string `json:"notes,omitempty"`
}

// Clamp bounds the score into [0, FieldMax].
func (e ScoreEntry) Clamp() ScoreEntry {
	if e.Score < 0 {
		e.Score = 0
	}
	if e.Score > FieldMax {
		e.Score = FieldMax
	}
	return e
}

// Batch is the immutable production-batch context for one session.
type Batch struct {
	ID       string  `json:"id"`
	Number   string  `json:"number"`
	Product  string  `json:"product"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Source   string  `json:"source,omitempty"`
}

// Partial is the field-indexed record built up over a session's turns.
// A field is present iff it has an entry.
type Partial map[Field]ScoreEntry

// Merge overwrites entries for every field mentioned in delta, clamping
// scores; fields absent from delta are untouched. Unknown keys never reach
// Merge (the extraction boundary drops them).
func (p Partial) Merge(delta Partial) {
	for field, entry := range delta {
		p[field] = entry.Clamp()
	}
}

// Clone returns an independent deep copy for listener snapshots.
func (p Partial) Clone() Partial {
	out := make(Partial, len(p))
	for field, entry := range p {
		notes := append([]string(nil), entry.Notes...)
		out[field] = ScoreEntry{Score: entry.Score, Notes: notes}
	}
	return out
}

// TotalScore sums each present field's clamped score; absent fields count 0.
func (p Partial) TotalScore() int {
	total := 0
	for _, field := range Fields() {
		if entry, ok := p[field]; ok {
			total += entry.Clamp().Score
		}
	}
	return total
}

// Missing returns the absent fields in fixed inspection order.
func (p Partial) Missing() []Field {
	missing := make([]Field, 0, len(Fields()))
	for _, field := range Fields() {
		if _, ok := p[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsComplete reports whether all five fields carry an entry.
func (p Partial) IsComplete() bool {
	return len(p.Missing()) == 0
}

// Filled returns the present fields in fixed inspection order.
func (p Partial) Filled() []Field {
	filled := make([]Field, 0, len(p))
	for _, field := range Fields() {
		if _, ok := p[field]; ok {
			filled = append(filled, field)
		}
	}
	return filled
}

// Grade classifies a total score into the A/B/C/D letter bands.
func Grade(totalScore int) string {
	switch {
	case totalScore >= 90:
		return "A"
	case totalScore >= 80:
		return "B"
	case totalScore >= 60:
		return "C"
	default:
		return "D"
	}
}

// SortedFields returns fields sorted by fixed inspection order, dropping
// any value outside the five-field set.
func SortedFields(fields []Field) []Field {
	order := make(map[Field]int, len(Fields()))
	for i, field := range Fields() {
		order[field] = i
	}

	out := make([]Field, 0, len(fields))
	for _, field := range fields {
		if _, ok := order[field]; ok {
			out = append(out, field)
		}
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}
