package extract

import (
	"fmt"
	"strings"

	"qcvoice/internal/record"
)

// systemInstructions is the fixed contract sent with every extraction call.
const systemInstructions = `You are the structured-extraction engine of a food-processing quality inspection assistant.
The inspector dictates observations for exactly five dimensions: appearance, smell, specification, weight, packaging.
Each dimension is scored 0-20. Reply with a single JSON object and nothing else:
{"action":"extract|clarify|confirm","fields":{"<dimension>":{"score":<0-20>,"notes":["..."]}},"reply":"<one short sentence for the inspector>"}
Use action "extract" when the utterance mentions at least one dimension, "clarify" when it mentions none,
and "confirm" when every dimension is filled and the inspector should confirm submission.
Only include dimensions actually mentioned in the utterance. Reply in the inspector's language.`

// BuildContext renders the per-turn user message from batch state.
func BuildContext(turn Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Batch %s: %s", turn.Batch.Number, turn.Batch.Product)
	if turn.Batch.Quantity > 0 {
		fmt.Fprintf(&b, ", %s %s", trimFloat(turn.Batch.Quantity), turn.Batch.Unit)
	}
	if turn.Batch.Source != "" {
		fmt.Fprintf(&b, ", source: %s", turn.Batch.Source)
	}
	b.WriteString("\n")

	if len(turn.Filled) == 0 {
		b.WriteString("Recorded dimensions: none\n")
	} else {
		b.WriteString("Recorded dimensions:")
		for _, field := range turn.Filled.Filled() {
			fmt.Fprintf(&b, " %s=%d", field, turn.Filled[field].Score)
		}
		b.WriteString("\n")
	}

	if len(turn.Missing) == 0 {
		b.WriteString("Missing dimensions: none\n")
	} else {
		names := make([]string, 0, len(turn.Missing))
		for _, field := range record.SortedFields(turn.Missing) {
			names = append(names, string(field))
		}
		fmt.Fprintf(&b, "Missing dimensions: %s\n", strings.Join(names, ", "))
	}

	fmt.Fprintf(&b, "Utterance: %s", strings.TrimSpace(turn.Transcript))
	return b.String()
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
