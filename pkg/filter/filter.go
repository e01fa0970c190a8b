// Package filter decides whether a message may be relayed. Evaluation is a
// pure function of the message text and the pair it resolved to: explicit
// blocklist checks run first and are decisive, then heuristic trap
// signatures, then allow.
package filter

import (
	"strings"

	"github.com/tinyland-inc/relayx/pkg/pairs"
)

type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionBlocked Decision = "blocked"
	DecisionTrapped Decision = "trapped"
)

// Trap kinds, in priority order. The first matching signature wins.
const (
	TrapForwardSlash = "forward_slash_trap"
	TrapSingleDigit  = "single_digit_trap"
	TrapExplicit     = "explicit_trap"
	TrapLeakWarning  = "leak_warning"
	TrapCopyWarning  = "copy_warning"
)

// Verdict is the filter outcome for one message.
type Verdict struct {
	Decision Decision
	// Reason holds the blocklist entry that matched when Decision is
	// blocked, or the trap kind when Decision is trapped.
	Reason string
}

func Allow() Verdict               { return Verdict{Decision: DecisionAllow} }
func Blocked(entry string) Verdict { return Verdict{Decision: DecisionBlocked, Reason: entry} }
func Trapped(kind string) Verdict  { return Verdict{Decision: DecisionTrapped, Reason: kind} }

func (v Verdict) Allowed() bool { return v.Decision == DecisionAllow }

// trapSignature matches against the stripped, lowercased text.
type trapSignature struct {
	kind  string
	match func(stripped string) bool
}

func containsToken(token string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, token) }
}

// The single-digit signature fires only on an exact lone "1"; a substring
// check would trap every text containing the digit.
var trapSignatures = []trapSignature{
	{TrapForwardSlash, containsToken("/ *")},
	{TrapSingleDigit, func(s string) bool { return s == "1" }},
	{TrapExplicit, containsToken("trap")},
	{TrapLeakWarning, containsToken("leak")},
	{TrapCopyWarning, containsToken("copy warning")},
}

// Filter evaluates message text against the global blocklist plus a pair's
// own entries.
type Filter struct {
	global []string
}

func New(global []string) *Filter {
	return &Filter{global: global}
}

// Evaluate returns the verdict for text relayed through pair. Blocklist
// checks short-circuit: global entries first, then pair entries; either hit
// is decisive regardless of trap signatures also present.
func (f *Filter) Evaluate(text string, pair *pairs.Pair) Verdict {
	lower := strings.ToLower(text)

	for _, entry := range f.global {
		if entry != "" && strings.Contains(lower, strings.ToLower(entry)) {
			return Blocked(entry)
		}
	}
	if pair != nil {
		for _, entry := range pair.Blocklist {
			if entry != "" && strings.Contains(lower, strings.ToLower(entry)) {
				return Blocked(entry)
			}
		}
	}

	stripped := strings.TrimSpace(lower)
	for _, sig := range trapSignatures {
		if sig.match(stripped) {
			return Trapped(sig.kind)
		}
	}

	return Allow()
}
