package tzcompile

import "errors"

var (
	// ErrInvalidState is returned when builder calls come in an order that
	// does not describe a zone, such as rules before the first window.
	ErrInvalidState = errors.New("invalid builder state")

	// ErrInvalidRule is returned for a rule with out of range fields.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRuleNotFound is returned when a zone line names rules that are
	// not defined.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrLink is returned for a link that does not resolve to a zone.
	ErrLink = errors.New("unresolvable link")
)
