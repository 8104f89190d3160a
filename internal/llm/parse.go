package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Likert scale bounds used for every scale question.
const (
	ScaleMin = 1
	ScaleMax = 7
)

// ScaleAnswer is the parsed form of a Likert-scale reply. An out-of-range or
// absent score yields Valid=false with the raw text preserved; the caller
// decides whether to re-ask or record the answer as invalid.
type ScaleAnswer struct {
	Score     int
	Reasoning string
	Valid     bool
}

var (
	scoreLineRe   = regexp.MustCompile(`(?i)score\s*[:：]\s*(-?\d+)`)
	reasonLineRe  = regexp.MustCompile(`(?is)(?:reason|reasoning|because)\s*[:：]\s*(.+)`)
	leadingIntRe  = regexp.MustCompile(`^\s*(-?\d+)`)
	anyScaleIntRe = regexp.MustCompile(`\b([1-7])\b`)
)

// jsonScaleReply matches models that answer in JSON despite the plain-text
// instructions, e.g. {"score": 5, "reason": "..."}.
type jsonScaleReply struct {
	Score     *int   `json:"score"`
	Reason    string `json:"reason"`
	Reasoning string `json:"reasoning"`
}

// ParseScale extracts the integer score and reasoning from a raw model reply.
// It tries, in order: a JSON object (repaired if malformed), a "Score: N"
// line, a leading integer, then any standalone digit within the scale range.
func ParseScale(raw string) ScaleAnswer {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ScaleAnswer{}
	}

	if answer, ok := parseJSONScale(text); ok {
		return answer
	}

	if match := scoreLineRe.FindStringSubmatch(text); match != nil {
		score, _ := strconv.Atoi(match[1])
		return scaleAnswer(score, extractReasoning(text))
	}

	if match := leadingIntRe.FindStringSubmatch(text); match != nil {
		score, _ := strconv.Atoi(match[1])
		reasoning := strings.TrimSpace(strings.TrimLeft(text[len(match[0]):], ",.;:- \t\n"))
		return scaleAnswer(score, reasoning)
	}

	if match := anyScaleIntRe.FindStringSubmatch(text); match != nil {
		score, _ := strconv.Atoi(match[1])
		return scaleAnswer(score, extractReasoning(text))
	}

	return ScaleAnswer{Reasoning: text}
}

func parseJSONScale(text string) (ScaleAnswer, bool) {
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "```") {
		return ScaleAnswer{}, false
	}

	candidate := strings.TrimSpace(text)
	candidate = strings.TrimPrefix(candidate, "```json")
	candidate = strings.TrimPrefix(candidate, "```")
	candidate = strings.TrimSuffix(candidate, "```")
	candidate = strings.TrimSpace(candidate)

	var reply jsonScaleReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return ScaleAnswer{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
			return ScaleAnswer{}, false
		}
	}
	if reply.Score == nil {
		return ScaleAnswer{}, false
	}

	reasoning := reply.Reason
	if reasoning == "" {
		reasoning = reply.Reasoning
	}
	return scaleAnswer(*reply.Score, reasoning), true
}

func scaleAnswer(score int, reasoning string) ScaleAnswer {
	return ScaleAnswer{
		Score:     score,
		Reasoning: reasoning,
		Valid:     score >= ScaleMin && score <= ScaleMax,
	}
}

func extractReasoning(text string) string {
	if match := reasonLineRe.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	// fall back to everything after the score line
	if loc := scoreLineRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[1]:])
	}
	return strings.TrimSpace(text)
}

// CheckOpenLength validates an open-ended answer against optional rune-length
// sanity bounds. Zero bounds disable the corresponding check.
func CheckOpenLength(answer string, minLen, maxLen int) bool {
	runes := len([]rune(strings.TrimSpace(answer)))
	if runes == 0 {
		return false
	}
	if minLen > 0 && runes < minLen {
		return false
	}
	if maxLen > 0 && runes > maxLen {
		return false
	}
	return true
}
