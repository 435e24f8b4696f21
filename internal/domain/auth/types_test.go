package auth

import "testing"

func TestParseRole(t *testing.T) {
	cases := []struct {
		claim string
		want  Role
	}{
		{"ADMIN", RoleAdmin},
		{"AGENT", RoleAgent},
		{"BUYER", RoleBuyer},
		{"ROLE_ADMIN", RoleAdmin},
		{"ROLE_AGENT", RoleAgent},
		{"ROLE_BUYER", RoleBuyer},
		{"", RoleBuyer},
		{"SUPERUSER", RoleBuyer},
		{"admin", RoleBuyer},
		{"ROLE_", RoleBuyer},
		{"ROLE_ROLE_ADMIN", RoleBuyer},
	}
	for _, tc := range cases {
		if got := ParseRole(tc.claim); got != tc.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tc.claim, got, tc.want)
		}
	}
}

func TestParseKycStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want KycStatus
	}{
		{"INAPPLICABLE", KycInapplicable},
		{"PENDING", KycPending},
		{"APPROVED", KycApproved},
		{"REJECTED", KycRejected},
		{"", KycUnknown},
		{"approved", KycUnknown},
		{"VERIFIED", KycUnknown},
	}
	for _, tc := range cases {
		if got := ParseKycStatus(tc.raw); got != tc.want {
			t.Fatalf("ParseKycStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestIdentity_HasRole(t *testing.T) {
	id := Identity{Role: RoleAgent}
	if !id.HasRole(RoleAgent) {
		t.Fatalf("expected agent role match")
	}
	if !id.HasRole(RoleBuyer, RoleAgent, RoleAdmin) {
		t.Fatalf("expected match within set")
	}
	if id.HasRole(RoleAdmin) {
		t.Fatalf("did not expect admin match")
	}
	if id.HasRole() {
		t.Fatalf("empty set must never match")
	}
}

func TestIdentity_AgentPanelEligible(t *testing.T) {
	cases := []struct {
		role Role
		kyc  KycStatus
		want bool
	}{
		{RoleAgent, KycApproved, true},
		{RoleAgent, KycPending, false},
		{RoleAgent, KycRejected, false},
		{RoleAgent, KycUnknown, false},
		{RoleAdmin, KycApproved, false},
		{RoleBuyer, KycApproved, false},
	}
	for _, tc := range cases {
		id := Identity{Role: tc.role, Kyc: tc.kyc}
		if got := id.AgentPanelEligible(); got != tc.want {
			t.Fatalf("AgentPanelEligible role=%s kyc=%s = %v, want %v", tc.role, tc.kyc, got, tc.want)
		}
	}
}
