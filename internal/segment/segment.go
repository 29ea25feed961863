// Package segment splits normalized transcript text into typed display
// segments. Delimited math ($..$ / $$..$$) and fenced code blocks are
// indivisible; sentence boundaries only apply to the prose between them.
package segment

import (
	"regexp"
	"strings"
)

// Type classifies a segment for rendering.
type Type string

const (
	TypeText Type = "text"
	TypeMath Type = "math"
	TypeCode Type = "code"
)

// Segment is one renderable unit. StartIndex and EndIndex are byte offsets
// [start, end) into the original input, so callers can map segments back to
// word timings.
type Segment struct {
	Text       string  `json:"text"`
	Type       Type    `json:"type"`
	LaTeX      string  `json:"latex,omitempty"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Confidence float64 `json:"confidence"`
}

// SpeakerChange marks a labeled speaker turn inside a transcript.
type SpeakerChange struct {
	Speaker string
	Offset  int
}

var (
	// Block form first: a separate inline pass over the same string would pair
	// a block's closing dollars with a later span's opening one.
	mathSpanRe  = regexp.MustCompile(`\$\$[^$]+\$\$|\$[^$\n]+\$`)
	codeFenceRe = regexp.MustCompile("(?s)```.*?```")
	sentenceRe   = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)
	speakerRe    = regexp.MustCompile(`(?m)^\s*(Teacher|Student)\s*:`)

	// Transcription artifacts that degrade confidence for the sentence
	// containing them.
	artifactRe = regexp.MustCompile(`(?i)\.{3}|\bum+\b|\buh+\b|\[[^\]]*\]`)
)

type protected struct {
	start, end int
	typ        Type
}

// protectedSpans finds the indivisible regions, in order. Code fences win over
// math so a dollar sign inside a fence is not treated as a delimiter.
func protectedSpans(text string) []protected {
	var spans []protected
	taken := make([]bool, len(text))
	mark := func(idx [][]int, typ Type) {
		for _, span := range idx {
			overlap := false
			for i := span[0]; i < span[1]; i++ {
				if taken[i] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for i := span[0]; i < span[1]; i++ {
				taken[i] = true
			}
			spans = append(spans, protected{start: span[0], end: span[1], typ: typ})
		}
	}
	mark(codeFenceRe.FindAllStringIndex(text, -1), TypeCode)
	mark(mathSpanRe.FindAllStringIndex(text, -1), TypeMath)

	// Regex order above is not positional order.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
	return spans
}

// stripDelimiters returns the inner content of a math span.
func stripDelimiters(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "$$") && strings.HasSuffix(s, "$$") && len(s) >= 4 {
		return strings.TrimSpace(s[2 : len(s)-2])
	}
	if strings.HasPrefix(s, "$") && strings.HasSuffix(s, "$") && len(s) >= 2 {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func confidenceFor(text string) float64 {
	const base = 1.0
	hits := len(artifactRe.FindAllString(text, -1))
	conf := base - 0.15*float64(hits)
	if conf < 0.3 {
		conf = 0.3
	}
	return conf
}

// SegmentText splits text into an ordered slice of segments. Prose is split
// on sentence terminators; math and code spans come through whole, typed and
// never split mid-span.
func SegmentText(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Segment
	prev := 0
	emitProse := func(start, end int) {
		chunk := text[start:end]
		for _, span := range sentenceRe.FindAllStringIndex(chunk, -1) {
			sentence := chunk[span[0]:span[1]]
			trimmed := strings.TrimSpace(sentence)
			if trimmed == "" {
				continue
			}
			lead := strings.Index(sentence, trimmed)
			out = append(out, Segment{
				Text:       trimmed,
				Type:       TypeText,
				StartIndex: start + span[0] + lead,
				EndIndex:   start + span[0] + lead + len(trimmed),
				Confidence: confidenceFor(trimmed),
			})
		}
	}
	for _, span := range protectedSpans(text) {
		emitProse(prev, span.start)
		seg := Segment{
			Text:       text[span.start:span.end],
			Type:       span.typ,
			StartIndex: span.start,
			EndIndex:   span.end,
			Confidence: 1.0,
		}
		if span.typ == TypeMath {
			seg.LaTeX = stripDelimiters(seg.Text)
		}
		out = append(out, seg)
		prev = span.end
	}
	emitProse(prev, len(text))
	return out
}

// DetectMathSegments returns only the math spans of text, in order of
// appearance, with the delimiters stripped into LaTeX.
func DetectMathSegments(text string) []Segment {
	var out []Segment
	for _, span := range protectedSpans(text) {
		if span.typ != TypeMath {
			continue
		}
		raw := text[span.start:span.end]
		out = append(out, Segment{
			Text:       raw,
			Type:       TypeMath,
			LaTeX:      stripDelimiters(raw),
			StartIndex: span.start,
			EndIndex:   span.end,
			Confidence: 1.0,
		})
	}
	return out
}

// DetectSpeakerChanges scans for "Teacher:" / "Student:" labels and reports
// each turn with the byte offset of its label.
func DetectSpeakerChanges(text string) []SpeakerChange {
	var out []SpeakerChange
	for _, span := range speakerRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, SpeakerChange{
			Speaker: text[span[2]:span[3]],
			Offset:  span[0],
		})
	}
	return out
}

// AlignSegments distributes totalDurationMs across segments proportionally to
// character length, returning per-segment [startMs, endMs) pairs. The final
// segment is pinned to totalDurationMs so rounding never loses tail time.
func AlignSegments(segments []Segment, totalDurationMs int64) [][2]int64 {
	if len(segments) == 0 {
		return nil
	}
	totalChars := 0
	for _, s := range segments {
		totalChars += len(s.Text)
	}
	out := make([][2]int64, len(segments))
	if totalChars == 0 {
		for i := range out {
			out[i] = [2]int64{totalDurationMs, totalDurationMs}
		}
		return out
	}
	var cursor int64
	for i, s := range segments {
		share := int64(float64(totalDurationMs) * float64(len(s.Text)) / float64(totalChars))
		end := cursor + share
		if i == len(segments)-1 {
			end = totalDurationMs
		}
		out[i] = [2]int64{cursor, end}
		cursor = end
	}
	return out
}
