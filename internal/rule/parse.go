// Package rule validates and evaluates approval rule trees. It is the only
// sanctioned parsing boundary for raw rule JSON; no other layer re-checks
// rule shape. All operations are pure tree walks with no held state.
package rule

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/quorumhq/quorum/model"
)

// Parse decodes raw JSON into an approval rule tree and validates it.
// It is the entry point for untyped rule payloads arriving over the
// transport layer.
func Parse(raw json.RawMessage) (model.ApprovalRule, error) {
	var r model.ApprovalRule
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.ApprovalRule{}, model.NewBadRequestError(fmt.Sprintf("malformed rule JSON: %v", err))
	}
	if err := Validate(r); err != nil {
		return model.ApprovalRule{}, err
	}
	return r, nil
}

// Validate checks the structural invariants of a rule tree: a known type
// tag on every node, a well-formed group ID and positive minimum count on
// every leaf, at least one child under every composite, and nesting no
// deeper than model.MaxRuleDepth below the root. Exceeding the depth
// limit is reported on its own, before any structural error of the
// offending subtree.
func Validate(r model.ApprovalRule) error {
	if depthOf(r) > model.MaxRuleDepth {
		return model.NewMaxRuleNestingError()
	}
	if errs := validateNode("rule", r); len(errs) > 0 {
		return model.NewValidationError(errs)
	}
	return nil
}

// depthOf returns the nesting depth of composites below the root. A lone
// leaf has depth 0.
func depthOf(r model.ApprovalRule) int {
	max := 0
	for _, child := range r.Rules {
		if d := depthOf(child) + 1; d > max {
			max = d
		}
	}
	return max
}

func validateNode(path string, r model.ApprovalRule) []model.FieldError {
	var errs []model.FieldError
	switch r.Type {
	case model.RuleGroupRequirement:
		if r.GroupID == "" {
			errs = append(errs, model.FieldError{
				Field: path + ".group_id", Code: "REQUIRED", Message: "group_id is required",
			})
		} else if _, err := uuid.Parse(r.GroupID); err != nil {
			errs = append(errs, model.FieldError{
				Field: path + ".group_id", Code: "INVALID_FORMAT", Message: "group_id must be a UUID",
			})
		}
		if r.MinCount < 1 {
			errs = append(errs, model.FieldError{
				Field: path + ".min_count", Code: "OUT_OF_RANGE", Message: "min_count must be a positive integer",
			})
		}
		if len(r.Rules) > 0 {
			errs = append(errs, model.FieldError{
				Field: path + ".rules", Code: "NOT_ALLOWED", Message: "group_requirement must not carry child rules",
			})
		}
	case model.RuleAnd, model.RuleOr:
		if len(r.Rules) == 0 {
			errs = append(errs, model.FieldError{
				Field: path + ".rules", Code: "REQUIRED", Message: "composite rule requires at least one child",
			})
		}
		for i, child := range r.Rules {
			errs = append(errs, validateNode(fmt.Sprintf("%s.rules[%d]", path, i), child)...)
		}
	default:
		errs = append(errs, model.FieldError{
			Field: path + ".type", Code: "INVALID_ENUM",
			Message: fmt.Sprintf("unknown rule type %q", r.Type),
		})
	}
	return errs
}
