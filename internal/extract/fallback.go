package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"qcvoice/internal/record"
)

// Heuristic derives a structured response from local keyword and number
// scanning. It is the degraded-mode extractor used whenever the remote
// service is unavailable or its payload is unusable, and it never fails:
// every call yields a structurally valid Response.
type Heuristic struct{}

// fieldKeywords lists recognition tokens per dimension; utterances arrive
// in Chinese or English depending on the plant.
var fieldKeywords = map[record.Field][]string{
	record.FieldAppearance:    {"外观", "色泽", "appearance"},
	record.FieldSmell:         {"气味", "嗅", "smell", "odor", "odour"},
	record.FieldSpecification: {"规格", "specification", "spec"},
	record.FieldWeight:        {"重量", "净重", "weight"},
	record.FieldPackaging:     {"包装", "packaging", "package"},
}

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`([0-9]+)\s*分`),
	regexp.MustCompile(`打\s*([0-9]+)`),
	regexp.MustCompile(`score\s*(?:of\s*|is\s*)?([0-9]+)`),
	regexp.MustCompile(`([0-9]+)\s*(?:points?|pts)`),
}

// qualitativeScores maps canned phrases to fixed scores, checked in order
// so stronger phrases win over weaker substrings.
var qualitativeScores = []struct {
	phrases []string
	score   int
}{
	{phrases: []string{"完美", "满分", "perfect"}, score: 20},
	{phrases: []string{"优秀", "非常好", "很好", "excellent"}, score: 18},
	{phrases: []string{"良好", "不错", "good"}, score: 16},
	{phrases: []string{"合格", "还行", "一般", "acceptable", "okay"}, score: 12},
	{phrases: []string{"不合格", "差", "poor", "bad"}, score: 6},
}

// Extract scans the transcript for field keywords and nearby scores.
func (Heuristic) Extract(_ context.Context, turn Context) (*Response, error) {
	transcript := strings.ToLower(strings.TrimSpace(turn.Transcript))

	hits := keywordHits(transcript)
	if len(hits) == 0 {
		return &Response{
			Action: ActionClarify,
			Fields: record.Partial{},
			Reply:  "I did not catch an inspection dimension. Please mention appearance, smell, specification, weight or packaging with a score.",
		}, nil
	}

	fields := record.Partial{}
	for i, hit := range hits {
		end := len(transcript)
		if i+1 < len(hits) {
			end = hits[i+1].index
		}
		span := transcript[hit.index:end]

		score, ok := findScore(span)
		if !ok {
			continue
		}
		fields[hit.field] = record.ScoreEntry{
			Score: score,
			Notes: []string{noteFromSpan(span)},
		}.Clamp()
	}

	if len(fields) == 0 {
		return &Response{
			Action: ActionClarify,
			Fields: record.Partial{},
			Reply:  "I heard an inspection dimension but no score. Please repeat with an explicit score from 0 to 20.",
		}, nil
	}

	merged := turn.Filled.Clone()
	merged.Merge(fields)

	action := ActionExtract
	if merged.IsComplete() {
		action = ActionConfirm
	}

	return &Response{
		Action:   action,
		Fields:   fields,
		Reply:    fallbackReply(fields, merged),
		Missing:  merged.Missing(),
		Complete: merged.IsComplete(),
	}, nil
}

type keywordHit struct {
	field record.Field
	index int
}

// keywordHits returns the first occurrence of each field keyword, ordered
// by position in the transcript.
func keywordHits(transcript string) []keywordHit {
	var hits []keywordHit
	for _, field := range record.Fields() {
		best := -1
		for _, keyword := range fieldKeywords[field] {
			if idx := strings.Index(transcript, keyword); idx >= 0 && (best < 0 || idx < best) {
				best = idx
			}
		}
		if best >= 0 {
			hits = append(hits, keywordHit{field: field, index: best})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].index < hits[j].index })
	return hits
}

// findScore looks for an explicit score figure, then qualitative phrases.
func findScore(span string) (int, bool) {
	for _, pattern := range scorePatterns {
		match := pattern.FindStringSubmatch(span)
		if match == nil {
			continue
		}
		score, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return score, true
	}

	for _, qual := range qualitativeScores {
		for _, phrase := range qual.phrases {
			if strings.Contains(span, phrase) {
				return qual.score, true
			}
		}
	}

	return 0, false
}

// noteFromSpan trims the keyword span into a short annotation.
func noteFromSpan(span string) string {
	note := strings.Trim(span, " \t\n,.;，。；、")
	const maxNote = 80
	if runes := []rune(note); len(runes) > maxNote {
		note = string(runes[:maxNote])
	}
	return note
}

// fallbackReply summarizes what was recorded and what is still open.
func fallbackReply(fields record.Partial, merged record.Partial) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields.Filled() {
		parts = append(parts, fmt.Sprintf("%s %d", field, fields[field].Score))
	}

	reply := "Recorded " + strings.Join(parts, ", ") + "."
	missing := merged.Missing()
	if len(missing) == 0 {
		return reply + " All five dimensions are recorded; say confirm to submit."
	}

	names := make([]string, 0, len(missing))
	for _, field := range missing {
		names = append(names, string(field))
	}
	return reply + " Still missing: " + strings.Join(names, ", ") + "."
}
