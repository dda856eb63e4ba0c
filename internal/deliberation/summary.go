package deliberation

import (
	"strings"

	"dev.aicounsel.server/internal/domain"
)

var summaryHeaders = []string{"CONSENSUS:", "KEY AGREEMENTS:", "KEY DISAGREEMENTS:", "FINAL RECOMMENDATION:"}

// parseSummary locates the canonical section headers in a summarizer's
// raw response and extracts their content, reading bullet points under
// the two list sections.
func parseSummary(raw string) domain.Summary {
	sections := splitSections(raw)

	return domain.Summary{
		Consensus:           strings.TrimSpace(sections["CONSENSUS:"]),
		KeyAgreements:       bulletPoints(sections["KEY AGREEMENTS:"]),
		KeyDisagreements:    bulletPoints(sections["KEY DISAGREEMENTS:"]),
		FinalRecommendation: strings.TrimSpace(sections["FINAL RECOMMENDATION:"]),
	}
}

// splitSections maps each canonical header to the text found between it
// and the next recognized header (or end of input).
func splitSections(raw string) map[string]string {
	sections := make(map[string]string)
	lines := strings.Split(raw, "\n")

	currentHeader := ""
	var buf []string
	flush := func() {
		if currentHeader != "" {
			sections[currentHeader] = strings.Join(buf, "\n")
		}
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		matchedHeader := ""
		for _, h := range summaryHeaders {
			if strings.HasPrefix(strings.ToUpper(trimmed), h) {
				matchedHeader = h
				break
			}
		}
		if matchedHeader != "" {
			flush()
			currentHeader = matchedHeader
			rest := strings.TrimSpace(trimmed[len(matchedHeader):])
			if rest != "" {
				buf = append(buf, rest)
			}
			continue
		}
		if currentHeader != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

func bulletPoints(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, "-")
		trimmed = strings.TrimPrefix(trimmed, "*")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
