package pipeline

import (
	"strings"

	"github.com/rodrigosardinha/gerador-query-darm/internal/util"
)

type DetectResult struct {
	IsDarm bool
	Score  float64
	Reason string
}

// Keywords are matched against accent-folded lowercase text.
var detectKeywords = []string{"darm", "documento de arrecadacao", "prefeitura", "inscricao municipal", "receita", "guia", "vencimento", "valor total", "valor do tributo"}

var numberedBlocks = []string{"01.", "02.", "03.", "04.", "05.", "06.", "09."}

// DetectDarm scores how much text looks like a paid municipal tax form. It is
// used to skip unrelated mail bodies and attachments, never to reject a file
// the operator put in the input directory.
func DetectDarm(subject, text string) DetectResult {
	subject = strings.ToLower(util.FoldAccents(subject))
	text = strings.ToLower(util.FoldAccents(text))

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	blocks := 0
	for _, b := range numberedBlocks {
		if strings.Contains(text, b) {
			blocks++
		}
	}
	if blocks >= 4 {
		score += 0.3
	} else if blocks >= 2 {
		score += 0.15
	}

	if longestDigitRun(text) >= 11 {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}

	isDarm := score >= 0.45
	reason := "rules_negative"
	if isDarm {
		reason = "rules_positive"
	}

	return DetectResult{IsDarm: isDarm, Score: score, Reason: reason}
}

// longestDigitRun measures the longest digit sequence, ignoring the spaces
// and dots barcode lines are printed with.
func longestDigitRun(text string) int {
	best, cur := 0, 0
	for i := 0; i < len(text); i++ {
		switch c := text[i]; {
		case c >= '0' && c <= '9':
			cur++
			if cur > best {
				best = cur
			}
		case c == ' ' || c == '.':
		default:
			cur = 0
		}
	}
	return best
}
