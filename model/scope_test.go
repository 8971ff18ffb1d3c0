package model

import "testing"

func TestScope_Equal(t *testing.T) {
	cases := []struct {
		name string
		a, b Scope
		want bool
	}{
		{"org_equals_org", OrgScope(), OrgScope(), true},
		{"org_ignores_id", Scope{Kind: ScopeOrg}, Scope{Kind: ScopeOrg, ID: "ignored"}, true},
		{"same_space", SpaceScope("sp-1"), SpaceScope("sp-1"), true},
		{"different_space", SpaceScope("sp-1"), SpaceScope("sp-2"), false},
		{"kind_mismatch", SpaceScope("x"), GroupScope("x"), false},
		{"same_template", WorkflowTemplateScope("wt-1"), WorkflowTemplateScope("wt-1"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestScope_Matches(t *testing.T) {
	cases := []struct {
		name      string
		held      Scope
		requested Scope
		want      bool
	}{
		{"org_matches_space", OrgScope(), SpaceScope("sp-1"), true},
		{"org_matches_group", OrgScope(), GroupScope("g-1"), true},
		{"org_matches_template", OrgScope(), WorkflowTemplateScope("wt-1"), true},
		{"space_matches_same_space", SpaceScope("sp-1"), SpaceScope("sp-1"), true},
		{"space_rejects_other_space", SpaceScope("sp-1"), SpaceScope("sp-2"), false},
		{"space_rejects_template_directly", SpaceScope("sp-1"), WorkflowTemplateScope("wt-1"), false},
		{"group_rejects_org", GroupScope("g-1"), OrgScope(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.held.Matches(tc.requested); got != tc.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tc.held, tc.requested, got, tc.want)
			}
		})
	}
}

func TestScope_Validate(t *testing.T) {
	cases := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"org_ok", OrgScope(), false},
		{"org_with_id", Scope{Kind: ScopeOrg, ID: "x"}, true},
		{"space_ok", SpaceScope("sp-1"), false},
		{"space_missing_id", Scope{Kind: ScopeSpace}, true},
		{"group_missing_id", Scope{Kind: ScopeGroup}, true},
		{"unknown_kind", Scope{Kind: "cluster", ID: "c-1"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.scope.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate(%v) error = %v, wantErr %v", tc.scope, err, tc.wantErr)
			}
		})
	}
}

func TestScope_String(t *testing.T) {
	if got := OrgScope().String(); got != "org" {
		t.Errorf("String() = %q, want %q", got, "org")
	}
	if got := SpaceScope("sp-1").String(); got != "space:sp-1" {
		t.Errorf("String() = %q, want %q", got, "space:sp-1")
	}
}
