package gateway

import "regexp"

// Redaction records that a pattern matched at least once in scrubbed text.
type Redaction struct {
	Type string `json:"type"`
}

type piiPattern struct {
	tag     string
	pattern *regexp.Regexp
}

// scrubOrder is significant: dob and date both match date-like strings,
// so dob must be tried before the generic date pattern, and more specific
// identifiers (ssn, mrn) must run before phone/email/date to avoid a
// phone-like substring of an SSN being redacted under the wrong tag.
var scrubOrder = []piiPattern{
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"mrn", regexp.MustCompile(`(?i)\bMRN[:\s]*\d{6,10}\b`)},
	{"phone", regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{"email", regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)},
	{"dob", regexp.MustCompile(`(?i)\bDOB[:\s]*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
	{"date", regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
}

// customPattern is a caller-supplied redaction rule appended after the
// built-ins.
type customPattern struct {
	tag     string
	pattern *regexp.Regexp
}

// PIIScrubber removes personally identifiable information from prompt
// text before it is sent to an external model.
type PIIScrubber struct {
	custom []customPattern
}

// NewPIIScrubber creates a scrubber with the built-in pattern set. Extra
// (tag, pattern) pairs are applied, in order, after the built-ins.
func NewPIIScrubber(extra ...struct {
	Tag     string
	Pattern *regexp.Regexp
}) *PIIScrubber {
	s := &PIIScrubber{}
	for _, e := range extra {
		s.custom = append(s.custom, customPattern{tag: e.Tag, pattern: e.Pattern})
	}
	return s
}

// Scrub replaces matches of each pattern, in declared order, with
// "[REDACTED:<tag>]". Each pattern contributes at most one Redaction to
// the result regardless of how many times it matched.
func (s *PIIScrubber) Scrub(text string) (string, []Redaction) {
	var redactions []Redaction

	apply := func(tag string, re *regexp.Regexp) {
		if !re.MatchString(text) {
			return
		}
		text = re.ReplaceAllString(text, "[REDACTED:"+tag+"]")
		redactions = append(redactions, Redaction{Type: tag})
	}

	for _, p := range scrubOrder {
		apply(p.tag, p.pattern)
	}
	for _, p := range s.custom {
		apply(p.tag, p.pattern)
	}

	return text, redactions
}
