package suggestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrim(t *testing.T) {
	t.Parallel()

	sentence := []string{SentenceStop}

	tests := []struct {
		name  string
		text  string
		after string
		stop  []string
		want  string
	}{
		{
			name:  "first sentence after removing duplicated whitespace",
			text:  "  and then it rained. The end",
			after: "  ",
			stop:  sentence,
			want:  "and then it rained.",
		},
		{
			name:  "no sentence rule keeps the rest",
			text:  "  and then it rained. The end",
			after: "  ",
			stop:  []string{"\n"},
			want:  "and then it rained. The end",
		},
		{
			name:  "after that is not a prefix is left alone",
			text:  " x",
			after: "  ",
			want:  " x",
		},
		{
			name: "leading whitespace before the sentence is kept",
			text: "   It works. Next one.",
			stop: sentence,
			want: "   It works.",
		},
		{
			name: "sentence is cut at its first newline",
			text: " foo\nbar.",
			stop: sentence,
			want: " foo",
		},
		{
			name: "whitespace-only segments are skipped",
			text: "\n\nHello there. More",
			stop: sentence,
			want: "\n\nHello there.",
		},
		{
			name: "text without a period is one sentence",
			text: " hello world",
			stop: sentence,
			want: " hello world",
		},
		{
			name: "only whitespace",
			text: "  \n ",
			stop: sentence,
			want: "",
		},
		{
			name: "empty",
			stop: sentence,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Trim(tt.text, tt.after, tt.stop))
		})
	}
}

// Sentence boundaries follow Unicode text segmentation, which has no list
// of abbreviations: a period followed by a capitalized word ends the
// sentence even after "Mr.", where an abbreviation-aware tokenizer would
// keep going. A lowercase continuation does not end it.
func TestTrim_AbbreviationBoundaries(t *testing.T) {
	t.Parallel()

	sentence := []string{SentenceStop}

	assert.Equal(t, " Mr.", Trim(" Mr. Smith went home. Later", "", sentence))
	assert.Equal(t, " Dr.", Trim(" Dr. Watson agreed.", "", sentence))
	assert.Equal(t, " pens, e.g. the red one.", Trim(" pens, e.g. the red one. Then", "", sentence))
}

func TestProbability(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 59.9, Probability([]float64{-0.51, -0.0024}), 0.01)
	assert.InDelta(t, 100.0, Probability(nil), 1e-9)

	p := Probability([]float64{-1, -2, -3, -4})
	assert.Greater(t, p, 0.0)
	assert.LessOrEqual(t, p, 100.0)
}
