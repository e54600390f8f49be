// Package nlp scores sentiment with a small VADER-style lexicon and asks the
// language model to label intent. It backs the adaptive personality loop.
package nlp

import (
	"math"
	"strings"
	"unicode"
)

// Valence weights on the VADER scale (-4..4). The list is intentionally
// small; companion chat skews toward everyday emotional vocabulary, not
// product reviews.
var lexicon = map[string]float64{
	"love":      3.2,
	"loved":     2.9,
	"like":      1.5,
	"great":     3.1,
	"good":      1.9,
	"awesome":   3.1,
	"amazing":   2.8,
	"wonderful": 2.7,
	"happy":     2.7,
	"glad":      2.0,
	"fun":       2.3,
	"nice":      1.8,
	"best":      3.2,
	"better":    1.9,
	"thanks":    1.9,
	"thank":     1.9,
	"excited":   2.4,
	"beautiful": 2.9,
	"perfect":   3.0,
	"enjoy":     2.2,
	"cool":      1.3,
	"yes":       1.1,

	"hate":       -2.7,
	"hated":      -3.2,
	"bad":        -2.5,
	"terrible":   -3.1,
	"horrible":   -2.5,
	"awful":      -2.0,
	"sad":        -2.1,
	"angry":      -2.3,
	"upset":      -1.6,
	"worst":      -3.1,
	"worse":      -2.1,
	"annoying":   -1.8,
	"boring":     -1.3,
	"lonely":     -1.5,
	"tired":      -1.2,
	"stressed":   -1.9,
	"frustrated": -2.2,
	"scared":     -2.2,
	"afraid":     -2.0,
	"worried":    -1.4,
	"no":         -1.2,
	"cry":        -2.2,
}

// Intensity modifiers and negations shift the word that follows them.
var boosters = map[string]float64{
	"very":      0.293,
	"really":    0.293,
	"extremely": 0.293,
	"so":        0.293,
	"totally":   0.293,
	"slightly":  -0.293,
	"somewhat":  -0.293,
	"kinda":     -0.293,
}

var negations = map[string]struct{}{
	"not":    {},
	"never":  {},
	"no":     {},
	"dont":   {},
	"don't":  {},
	"cant":   {},
	"can't":  {},
	"wont":   {},
	"won't":  {},
	"isnt":   {},
	"isn't":  {},
	"wasnt":  {},
	"wasn't": {},
}

// Sentiment carries the polarity scores for one piece of text.
type Sentiment struct {
	Compound float64
	Positive float64
	Negative float64
	Neutral  float64
	Overall  string
}

// ScoreSentiment computes lexicon-based polarity. Compound is normalized to
// [-1, 1] with x/sqrt(x^2+15); Positive, Negative, and Neutral are the
// absolute-valence shares.
func ScoreSentiment(text string) Sentiment {
	tokens := tokenize(text)

	var sum, pos, neg float64
	var neutral int
	for i, tok := range tokens {
		valence, ok := lexicon[tok]
		if !ok {
			if _, booster := boosters[tok]; !booster {
				if _, negation := negations[tok]; !negation {
					neutral++
				}
			}
			continue
		}

		if i > 0 {
			if boost, ok := boosters[tokens[i-1]]; ok {
				if valence > 0 {
					valence += boost
				} else {
					valence -= boost
				}
			}
			if negated(tokens, i) {
				valence *= -0.74
			}
		}

		sum += valence
		if valence > 0 {
			pos += valence + 1
		} else if valence < 0 {
			neg += math.Abs(valence) + 1
		}
	}

	compound := sum / math.Sqrt(sum*sum+15)

	total := pos + neg + float64(neutral)
	s := Sentiment{Compound: compound}
	if total > 0 {
		s.Positive = pos / total
		s.Negative = neg / total
		s.Neutral = float64(neutral) / total
	}

	switch {
	case compound >= 0.05:
		s.Overall = "positive"
	case compound <= -0.05:
		s.Overall = "negative"
	default:
		s.Overall = "neutral"
	}
	return s
}

// negated reports whether one of the two preceding tokens is a negation.
func negated(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-2; j-- {
		if _, ok := negations[tokens[j]]; ok {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// TemperatureFor adapts the generation temperature to the sentiment of the
// user's text. It plugs into the conversation engine's per-turn options.
func TemperatureFor(text string, temperature float64) float64 {
	return AdjustTemperature(ScoreSentiment(text).Compound, temperature)
}

// AdjustTemperature nudges the generation temperature toward calmer output
// for negative sentiment and livelier output for positive sentiment.
func AdjustTemperature(compound, temperature float64) float64 {
	switch {
	case compound <= -0.5:
		return 0.3
	case compound < -0.3:
		return math.Max(0.3, temperature-0.2)
	case compound > 0.5:
		return 0.9
	case compound > 0.3:
		return math.Min(0.9, temperature+0.2)
	}
	return temperature
}
