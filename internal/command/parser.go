package command

import (
	"regexp"
	"strconv"
	"strings"
)

type IntentKind string

const (
	IntentNone   IntentKind = "none"
	IntentClose  IntentKind = "close_report"
	IntentStatus IntentKind = "status_query"
	IntentHelp   IntentKind = "help"
)

var reportRefPattern = regexp.MustCompile(`#(\d+)`)

// Keywords holds the localized trigger words. CaseInsensitive applies to every
// class at once so a deployment never mixes matching rules.
type Keywords struct {
	Done            []string
	Status          []string
	Help            []string
	CaseInsensitive bool
}

type Intent struct {
	Kind     IntentKind
	ReportID int
	HasID    bool
}

// Parser maps free-text admin input to an intent.
type Parser struct {
	keywords Keywords
}

func NewParser(keywords Keywords) *Parser {
	normalized := Keywords{CaseInsensitive: keywords.CaseInsensitive}
	normalized.Done = normalizeKeywords(keywords.Done, keywords.CaseInsensitive)
	normalized.Status = normalizeKeywords(keywords.Status, keywords.CaseInsensitive)
	normalized.Help = normalizeKeywords(keywords.Help, keywords.CaseInsensitive)
	return &Parser{keywords: normalized}
}

// Parse checks close before status before help: a close message may carry
// other tokens, the other two must match exactly.
func (p *Parser) Parse(text string) Intent {
	normalized := p.normalize(text)
	if normalized == "" {
		return Intent{Kind: IntentNone}
	}

	for _, keyword := range p.keywords.Done {
		if strings.Contains(normalized, keyword) {
			intent := Intent{Kind: IntentClose}
			if match := reportRefPattern.FindStringSubmatch(normalized); match != nil {
				intent.HasID = true
				// An overflowing reference keeps ReportID at 0, which no report uses.
				if id, err := strconv.Atoi(match[1]); err == nil {
					intent.ReportID = id
				}
			}
			return intent
		}
	}
	if containsExact(p.keywords.Status, normalized) {
		return Intent{Kind: IntentStatus}
	}
	if containsExact(p.keywords.Help, normalized) {
		return Intent{Kind: IntentHelp}
	}
	return Intent{Kind: IntentNone}
}

func (p *Parser) normalize(text string) string {
	trimmed := strings.TrimSpace(text)
	if p.keywords.CaseInsensitive {
		return strings.ToLower(trimmed)
	}
	return trimmed
}

func normalizeKeywords(values []string, fold bool) []string {
	result := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if fold {
			value = strings.ToLower(value)
		}
		result = append(result, value)
	}
	return result
}

func containsExact(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
