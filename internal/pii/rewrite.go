package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// Redact returns text with every finding replaced by its type-specific
// redaction form.
func Redact(text string, findings []Finding) string {
	return rewrite(text, findings, redactionFor)
}

// Hash returns text with every finding replaced by a bracketed tag holding
// a short deterministic fingerprint of the match. Equal values hash to
// equal tags, preserving cross-occurrence equality without revealing the
// value.
func Hash(text string, findings []Finding) string {
	return rewrite(text, findings, hashTagFor)
}

// rewrite splices replacements into text by copying the gaps between
// accepted spans. Findings may overlap because detection does not
// deduplicate; the tie-break is last-span-wins: spans are considered from
// highest start offset down, and a span overlapping one already accepted
// is skipped.
func rewrite(text string, findings []Finding, replacement func(Finding) string) string {
	if len(findings) == 0 {
		return text
	}

	ordered := make([]Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	accepted := make([]Finding, 0, len(ordered))
	minStart := len(text) + 1
	for _, f := range ordered {
		if f.Start < 0 || f.End > len(text) || f.Start >= f.End {
			continue
		}
		if f.End > minStart {
			continue
		}
		accepted = append(accepted, f)
		minStart = f.Start
	}

	// accepted is in descending start order; walk it backwards to build
	// the result front to back.
	var b strings.Builder
	pos := 0
	for i := len(accepted) - 1; i >= 0; i-- {
		f := accepted[i]
		b.WriteString(text[pos:f.Start])
		b.WriteString(replacement(f))
		pos = f.End
	}
	b.WriteString(text[pos:])
	return b.String()
}

func redactionFor(f Finding) string {
	switch f.Type {
	case TypeEmail:
		if at := strings.Index(f.Text, "@"); at > 0 {
			local := f.Text[:at]
			if len(local) > 2 {
				local = local[:2]
			}
			return local + "***@***.***"
		}
		return "[EMAIL]"
	case TypePhone:
		return "[PHONE]"
	case TypeSSN:
		return "[SSN]"
	case TypeCreditCard:
		digits := nonDigits.ReplaceAllString(f.Text, "")
		if len(digits) >= 4 {
			return "****-****-****-" + digits[len(digits)-4:]
		}
		return "[CREDIT_CARD]"
	case TypeAPIKey:
		return "[API_KEY]"
	case TypeAWSKey:
		return "[AWS_KEY]"
	case TypePersonName:
		return "[NAME]"
	default:
		return "[" + strings.ToUpper(f.Type) + "]"
	}
}

func hashTagFor(f Finding) string {
	sum := sha256.Sum256([]byte(f.Text))
	return fmt.Sprintf("[%s:%s]", f.Type, hex.EncodeToString(sum[:])[:8])
}
