package engine

import (
	"strings"
	"unicode/utf8"
)

// Session name and rules bounds, counted in runes after trimming.
const (
	MinNameLength  = 3
	MaxNameLength  = 50
	MaxRulesLength = 500
)

// ViolationCode tags a single failed validation rule.
type ViolationCode string

const (
	ViolationNameTooShort    ViolationCode = "NAME_TOO_SHORT"
	ViolationNameTooLong     ViolationCode = "NAME_TOO_LONG"
	ViolationRulesTooLong    ViolationCode = "RULES_TOO_LONG"
	ViolationCreatorRequired ViolationCode = "CREATOR_REQUIRED"
)

// Violation is one failed rule.
type Violation struct {
	Field   string        `json:"field"`
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// Validation is the outcome of applying a rule set.
type Validation struct {
	Violations []Violation
}

// OK reports whether every rule passed.
func (v Validation) OK() bool {
	return len(v.Violations) == 0
}

// Err converts a failed validation to an InvalidInput error, or nil.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	msgs := make([]string, len(v.Violations))
	for i, vi := range v.Violations {
		msgs[i] = vi.Message
	}
	return &Error{
		Code:       CodeInvalidInput,
		Message:    strings.Join(msgs, "; "),
		Violations: v.Violations,
	}
}

// CreateInput holds the parameters of a create command.
type CreateInput struct {
	Name      string
	Rules     string
	CreatorID string
}

// Normalize trims surrounding whitespace from text fields.
func (in CreateInput) Normalize() CreateInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Rules = strings.TrimSpace(in.Rules)
	in.CreatorID = strings.TrimSpace(in.CreatorID)
	return in
}

type createRule struct {
	field   string
	code    ViolationCode
	message string
	fails   func(CreateInput) bool
}

var createRules = []createRule{
	{
		field:   "creator_id",
		code:    ViolationCreatorRequired,
		message: "creator is required",
		fails:   func(in CreateInput) bool { return in.CreatorID == "" },
	},
	{
		field:   "name",
		code:    ViolationNameTooShort,
		message: "name must be at least 3 characters",
		fails:   func(in CreateInput) bool { return utf8.RuneCountInString(in.Name) < MinNameLength },
	},
	{
		field:   "name",
		code:    ViolationNameTooLong,
		message: "name must be at most 50 characters",
		fails:   func(in CreateInput) bool { return utf8.RuneCountInString(in.Name) > MaxNameLength },
	},
	{
		field:   "rules",
		code:    ViolationRulesTooLong,
		message: "rules must be at most 500 characters",
		fails:   func(in CreateInput) bool { return utf8.RuneCountInString(in.Rules) > MaxRulesLength },
	},
}

// ValidateCreate applies every create rule in order to the normalized input
// and collects all violations.
func ValidateCreate(in CreateInput) Validation {
	in = in.Normalize()
	var v Validation
	for _, r := range createRules {
		if r.fails(in) {
			v.Violations = append(v.Violations, Violation{Field: r.field, Code: r.code, Message: r.message})
		}
	}
	return v
}
