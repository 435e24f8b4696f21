package auth

// Package auth contains domain-level types for portal identities and
// authorization state. It is pure and free of transport/adapter concerns.

import "strings"

// Role represents a portal account role as issued by the marketplace API.
// The wire form is uppercase; keep string form for easy persistence.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleAgent Role = "AGENT"
	RoleBuyer Role = "BUYER"
)

// roleClaimPrefix is stripped from token role claims before validation.
const roleClaimPrefix = "ROLE_"

// ParseRole maps a raw role claim to a Role. A "ROLE_" prefix is stripped
// first; the remainder is accepted only when it names a known role. Anything
// else, including an absent claim, yields RoleBuyer so an unrecognized claim
// can never fail open into a privileged role.
func ParseRole(claim string) Role {
	v := strings.TrimPrefix(claim, roleClaimPrefix)
	switch Role(v) {
	case RoleAdmin, RoleAgent, RoleBuyer:
		return Role(v)
	default:
		return RoleBuyer
	}
}

// KycStatus is the agent verification state reported by the marketplace API.
// KycUnknown means the status has not been observed for this session yet.
type KycStatus string

const (
	KycUnknown      KycStatus = ""
	KycInapplicable KycStatus = "INAPPLICABLE"
	KycPending      KycStatus = "PENDING"
	KycApproved     KycStatus = "APPROVED"
	KycRejected     KycStatus = "REJECTED"
)

// ParseKycStatus maps a raw status string to a KycStatus, returning
// KycUnknown for anything it does not recognize.
func ParseKycStatus(s string) KycStatus {
	switch KycStatus(s) {
	case KycInapplicable, KycPending, KycApproved, KycRejected:
		return KycStatus(s)
	default:
		return KycUnknown
	}
}

// Identity is the authenticated principal for one browser session.
// It is replaced wholesale on login/registration/rehydration; only Kyc is
// updated in place, via the KYC refresh operation.
type Identity struct {
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Kyc       KycStatus `json:"kycVerified,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Phone     string    `json:"phoneNumber,omitempty"`
	State     string    `json:"state,omitempty"`
	City      string    `json:"city,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

// HasRole reports whether the identity's role is among the given set.
func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// AgentPanelEligible is the single authorization rule gating agent-only
// actions: the role must be AGENT and KYC must be exactly APPROVED.
func (i Identity) AgentPanelEligible() bool {
	return i.Role == RoleAgent && i.Kyc == KycApproved
}
