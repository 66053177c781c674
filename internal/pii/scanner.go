// Package pii detects and rewrites sensitive data in request and response
// text. Detection always runs against the original text so finding offsets
// stay valid; rewrites are applied afterwards from highest to lowest
// offset.
package pii

import (
	"regexp"
	"sort"
	"strings"
)

// Entity type names. These are the values accepted by the policy's
// pii_detection.entities list.
const (
	TypeEmail      = "email"
	TypePhone      = "phone"
	TypeSSN        = "ssn"
	TypeCreditCard = "credit_card"
	TypeIPAddress  = "ip_address"
	TypeAPIKey     = "api_key"
	TypeAWSKey     = "aws_key"
	TypePersonName = "person_name"
)

// Finding is a single sensitive-data match. Start and End are byte offsets
// into the original, pre-rewrite text.
type Finding struct {
	Type  string
	Text  string
	Start int
	End   int
}

// matcher finds all spans of one entity type.
type matcher struct {
	typ string
	re  *regexp.Regexp
}

func (m matcher) find(text string) []Finding {
	var findings []Finding
	for _, loc := range m.re.FindAllStringIndex(text, -1) {
		findings = append(findings, Finding{
			Type:  m.typ,
			Text:  text[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
		})
	}
	return findings
}

// commonNames is a small curated dictionary for basic person-name
// detection, matched case-insensitively on whole words.
var commonNames = []string{
	"john", "jane", "smith", "johnson", "williams", "brown", "jones",
	"davis", "miller", "wilson", "moore", "taylor", "anderson", "thomas",
	"jackson", "white", "harris", "martin", "thompson", "garcia", "martinez",
}

// Scanner detects sensitive data using a fixed, ordered matcher registry.
// Adding a type means adding a matcher; the scan loop never changes.
type Scanner struct {
	matchers []matcher
}

// NewScanner builds a scanner with the default matcher registry.
func NewScanner() *Scanner {
	return &Scanner{
		matchers: []matcher{
			{TypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{TypePhone, regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b|\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)},
			{TypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`)},
			{TypeCreditCard, regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
			{TypeIPAddress, regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)},
			{TypeAPIKey, regexp.MustCompile(`\b(sk-[a-zA-Z0-9]{48}|pk_[a-zA-Z0-9]{32}|Bearer\s+[a-zA-Z0-9\-_.]+)\b`)},
			{TypeAWSKey, regexp.MustCompile(`\b(AKIA[0-9A-Z]{16}|aws_access_key_id\s*=\s*[A-Z0-9]{20})\b`)},
			{TypePersonName, regexp.MustCompile(`(?i)\b(` + strings.Join(commonNames, "|") + `)\b`)},
		},
	}
}

// Detect returns all raw matches in text, sorted by start offset.
// Overlapping findings are neither merged nor deduplicated; the caller
// sees every match.
func (s *Scanner) Detect(text string) []Finding {
	var findings []Finding
	for _, m := range s.matchers {
		findings = append(findings, m.find(text)...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		if findings[i].End != findings[j].End {
			return findings[i].End < findings[j].End
		}
		return findings[i].Type < findings[j].Type
	})
	return findings
}

// Filter keeps only findings whose type appears in entities. An empty
// entities list keeps everything.
func Filter(findings []Finding, entities []string) []Finding {
	if len(entities) == 0 {
		return findings
	}
	allowed := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		allowed[e] = struct{}{}
	}
	var out []Finding
	for _, f := range findings {
		if _, ok := allowed[f.Type]; ok {
			out = append(out, f)
		}
	}
	return out
}
