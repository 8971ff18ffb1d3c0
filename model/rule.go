package model

// RuleType discriminates the approval rule union. Every consumer of the
// tree (validator, coverage evaluator, group extractor, step-up predicate)
// switches exhaustively on this tag; a new rule kind must be handled in
// all of them.
type RuleType string

// Rule node kinds.
const (
	RuleGroupRequirement RuleType = "group_requirement"
	RuleAnd              RuleType = "and"
	RuleOr               RuleType = "or"
)

// MaxRuleDepth is the maximum nesting depth of composite rules below the
// root. A root composite may contain composites (depth 1) whose children
// (depth 2) must all be leaves.
const MaxRuleDepth = 2

// ApprovalRule is a node in the recursive approval rule tree.
//
// A group_requirement leaf names a group and the minimum number of
// distinct approving voters required from it; RequireStepUp marks leaves
// whose votes demand a high-privilege session. Composite and/or nodes
// carry one or more child rules and no leaf fields.
//
// Rule trees are immutable once attached to a workflow or template; a
// template update replaces the whole tree.
type ApprovalRule struct {
	Type RuleType `json:"type"`

	// Leaf fields (group_requirement only).
	GroupID       string `json:"group_id,omitempty"`
	MinCount      int    `json:"min_count,omitempty"`
	RequireStepUp bool   `json:"require_step_up,omitempty"`

	// Composite fields (and/or only).
	Rules []ApprovalRule `json:"rules,omitempty"`
}
