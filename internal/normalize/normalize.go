// Package normalize cleans raw speech-to-text output before segmentation:
// whitespace collapse, spoken-math rewriting, transcription-noise removal and
// number-word conversion. Every stage is independently callable and is a
// no-op on text it has nothing to do with.
package normalize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Protected math spans are never rewritten. Block form first so $$..$$ is
	// not matched as two empty inline spans.
	mathSpanRe = regexp.MustCompile(`\$\$[^$]*\$\$|\$[^$\n]+\$`)

	operatorRe = regexp.MustCompile(`(?i)\b(divided by|multiplied by|times|plus|minus|equals)\b`)
	functionRe = regexp.MustCompile(`(?i)\b(sine|cosine|tangent|square root|log|natural log)\s+of\s+([A-Za-z][A-Za-z0-9]*|\d+)`)
	greekRe    = regexp.MustCompile(`(?i)\b(alpha|beta|gamma|delta|theta|lambda|sigma|omega|epsilon|phi|pi|mu)\b`)

	noiseRe = regexp.MustCompile(`(?i)[\[(](?:inaudible|crosstalk|laughter|music|noise|silence|unintelligible|background noise)[^\])]*[\])]`)

	numberWordRe = regexp.MustCompile(`(?i)\b(zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|sixty|seventy|eighty|ninety|first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\b`)
)

var operatorSymbols = map[string]string{
	"divided by":    "/",
	"multiplied by": "*",
	"times":         "*",
	"plus":          "+",
	"minus":         "-",
	"equals":        "=",
}

var functionNames = map[string]string{
	"sine":        "sin",
	"cosine":      "cos",
	"tangent":     "tan",
	"square root": "sqrt",
	"log":         "log",
	"natural log": "ln",
}

var greekGlyphs = map[string]string{
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ",
	"theta": "θ", "lambda": "λ", "sigma": "σ", "omega": "ω",
	"epsilon": "ε", "phi": "φ", "pi": "π", "mu": "μ",
}

var numberWords = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"ten": "10", "eleven": "11", "twelve": "12", "thirteen": "13",
	"fourteen": "14", "fifteen": "15", "sixteen": "16", "seventeen": "17",
	"eighteen": "18", "nineteen": "19", "twenty": "20", "thirty": "30",
	"forty": "40", "fifty": "50", "sixty": "60", "seventy": "70",
	"eighty": "80", "ninety": "90",
	"first": "1st", "second": "2nd", "third": "3rd", "fourth": "4th",
	"fifth": "5th", "sixth": "6th", "seventh": "7th", "eighth": "8th",
	"ninth": "9th", "tenth": "10th",
}

// Normalize runs the full pipeline in its fixed order. Normalization always
// precedes segmentation; no stage moves boundaries computed downstream.
func Normalize(text string) string {
	text = CollapseWhitespace(text)
	text = RewriteMathSpeech(text)
	text = StripNoiseTokens(text)
	text = NumbersToDigits(text)
	return text
}

// CollapseWhitespace folds runs of whitespace and newlines into single spaces
// and trims the ends.
func CollapseWhitespace(text string) string {
	if !whitespaceRe.MatchString(text) {
		return text
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// applyOutsideMath runs fn over the stretches of text between protected math
// spans, leaving the spans byte-for-byte untouched.
func applyOutsideMath(text string, fn func(string) string) string {
	spans := mathSpanRe.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return fn(text)
	}
	var b strings.Builder
	prev := 0
	for _, span := range spans {
		b.WriteString(fn(text[prev:span[0]]))
		b.WriteString(text[span[0]:span[1]])
		prev = span[1]
	}
	b.WriteString(fn(text[prev:]))
	return b.String()
}

// RewriteMathSpeech canonicalizes spoken mathematics: operator words to
// symbols, spoken function application to call syntax, Greek letter names to
// glyphs. Existing math delimiters are left alone.
func RewriteMathSpeech(text string) string {
	return applyOutsideMath(text, func(part string) string {
		part = functionRe.ReplaceAllStringFunc(part, func(m string) string {
			groups := functionRe.FindStringSubmatch(m)
			name := functionNames[strings.ToLower(groups[1])]
			return name + "(" + strings.ToLower(groups[2]) + ")"
		})
		part = operatorRe.ReplaceAllStringFunc(part, func(m string) string {
			return operatorSymbols[strings.ToLower(m)]
		})
		part = greekRe.ReplaceAllStringFunc(part, func(m string) string {
			return greekGlyphs[strings.ToLower(m)]
		})
		return part
	})
}

// StripNoiseTokens removes bracketed transcription tags such as [inaudible]
// or (crosstalk) and re-collapses the whitespace left behind.
func StripNoiseTokens(text string) string {
	if !noiseRe.MatchString(text) {
		return text
	}
	return CollapseWhitespace(noiseRe.ReplaceAllString(text, " "))
}

// NumbersToDigits converts spelled-out small numbers and ordinals to digit
// form for educational readability.
func NumbersToDigits(text string) string {
	return applyOutsideMath(text, func(part string) string {
		return numberWordRe.ReplaceAllStringFunc(part, func(m string) string {
			return numberWords[strings.ToLower(m)]
		})
	})
}
