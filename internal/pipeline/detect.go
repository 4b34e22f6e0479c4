package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
)

type DetectResult struct {
	HasContacts bool
	Score       float64
	Reason      string
}

var detectKeywords = []string{"contact", "phone", "mobile", "number", "list", "leads", "customer", "whatsapp", "sheet"}

var reMobileInText = regexp.MustCompile(`(?:\+?91[\s-]?)?[6-9]\d{4}[\s-]?\d{5}`)

// DetectContactPayload scores a message for contact data worth processing.
func DetectContactPayload(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	mobileHits := len(reMobileInText.FindAllString(text, -1))
	if mobileHits >= 2 {
		score += 0.5
	} else if mobileHits == 1 {
		score += 0.25
	}

	for _, name := range attachmentNames {
		if IsProcessableAttachment(name) {
			score += 0.5
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	hasContacts := score >= 0.45
	reason := "rules_negative"
	if hasContacts {
		reason = "rules_positive"
	}

	return DetectResult{HasContacts: hasContacts, Score: score, Reason: reason}
}

func IsProcessableAttachment(name string) bool {
	all := append(append(append([]string{}, SpreadsheetExtensions...), ImageExtensions...), DocumentExtensions...)
	return hasExtension(filepath.Base(name), all)
}
