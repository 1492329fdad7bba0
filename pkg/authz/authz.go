// Package authz decides whether a token's permissions and roles satisfy an
// operation's requirement.
//
// Evaluation walks the required items in order and stops at a fixed
// position: under OR it stops at the first match, under AND at the first
// miss. The result is the membership of the last item tested. Two cases
// follow from this that a plain any/all would get wrong:
//
//   - an empty required list evaluates to false
//   - a token with no attributes of the kind evaluates to false
//
// Callers that want "no requirement" must not evaluate at all; see
// [Requirement.Allows].
package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/StricklySoft/tokengate/pkg/token"
)

// Logical combines the outcomes of individual membership checks.
type Logical int

const (
	// AND requires every item.
	AND Logical = iota
	// OR requires at least one item.
	OR
)

// String returns "AND" or "OR".
func (l Logical) String() string {
	if l == OR {
		return "OR"
	}
	return "AND"
}

// ParseLogical parses "and" or "or", ignoring case.
func ParseLogical(s string) (Logical, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return AND, nil
	case "OR":
		return OR, nil
	}
	return AND, fmt.Errorf("authz: unknown logical mode %q", s)
}

// AttributeSet answers membership queries for one attribute kind.
type AttributeSet interface {
	Contains(item string) bool
}

// Set is an AttributeSet over a string slice using exact matching.
type Set []string

// Contains reports whether item is in s.
func (s Set) Contains(item string) bool {
	return slices.Contains(s, item)
}

// Evaluate tests required against set under mode. A nil set never matches.
func Evaluate(set AttributeSet, required []string, mode Logical) bool {
	result := false
	for _, item := range required {
		if set != nil {
			result = set.Contains(item)
		}
		if (result && mode == OR) || (!result && mode == AND) {
			break
		}
	}
	return result
}

// HasPermission evaluates required permissions against t. A nil token is
// always denied.
func HasPermission(t *token.Token, required []string, mode Logical) bool {
	if t == nil {
		return false
	}
	return Evaluate(attributeSet(t.Permissions), required, mode)
}

// HasRole evaluates required roles against t. A nil token is always denied.
func HasRole(t *token.Token, required []string, mode Logical) bool {
	if t == nil {
		return false
	}
	return Evaluate(attributeSet(t.Roles), required, mode)
}

func attributeSet(items []string) AttributeSet {
	if items == nil {
		return nil
	}
	return Set(items)
}
