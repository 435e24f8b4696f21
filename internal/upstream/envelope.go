package upstream

import (
	"encoding/json"
	"fmt"

	domainauth "github.com/propaddadjs/portal-gateway/internal/domain/auth"
	apperrors "github.com/propaddadjs/portal-gateway/internal/errors"
	"github.com/propaddadjs/portal-gateway/internal/ports"
)

// userDTO is the wire shape of an embedded user payload. The API is not
// consistent about the id key, so both spellings are accepted.
type userDTO struct {
	UserID      int64  `json:"userId"`
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	KycVerified string `json:"kycVerified"`
	KycStatus   string `json:"kycStatus"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	State       string `json:"state"`
	City        string `json:"city"`
	AvatarURL   string `json:"avatarUrl"`
}

// authResponseDTO is the wire shape shared by the me/login/register/refresh
// endpoints. Which fields are present varies per endpoint and deployment;
// token and status keys each have two historical spellings.
type authResponseDTO struct {
	AccessToken  string   `json:"accessToken"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	User         *userDTO `json:"user"`

	// Identity fields sometimes present directly on the body.
	UserID      int64  `json:"userId"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	KycVerified string `json:"kycVerified"`
	KycStatus   string `json:"kycStatus"`
}

// parseIdentity validates an embedded user payload into a domain identity.
// A payload is usable only when it carries a positive user id, an email, and
// a role; anything less falls through to the token-decode fallback instead of
// being adopted as a half-formed identity.
func parseIdentity(dto *userDTO) (*domainauth.Identity, error) {
	if dto == nil {
		return nil, apperrors.Validation("missing user payload")
	}
	id := dto.UserID
	if id == 0 {
		id = dto.ID
	}
	if id <= 0 {
		return nil, apperrors.ValidationField("userId", "missing or non-positive user id")
	}
	if dto.Email == "" {
		return nil, apperrors.ValidationField("email", "missing email")
	}
	if dto.Role == "" {
		return nil, apperrors.ValidationField("role", "missing role")
	}

	kycRaw := dto.KycVerified
	if kycRaw == "" {
		kycRaw = dto.KycStatus
	}

	return &domainauth.Identity{
		UserID:    id,
		Email:     dto.Email,
		Role:      domainauth.ParseRole(dto.Role),
		Kyc:       domainauth.ParseKycStatus(kycRaw),
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Phone:     dto.PhoneNumber,
		State:     dto.State,
		City:      dto.City,
		AvatarURL: dto.AvatarURL,
	}, nil
}

// parseEnvelope normalizes a raw auth response body. An unusable embedded
// user leaves Envelope.User nil rather than failing the whole response; the
// caller decides whether a missing identity is fatal for its step.
func parseEnvelope(data []byte) (*ports.AuthEnvelope, error) {
	var dto authResponseDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}

	access := dto.AccessToken
	if access == "" {
		access = dto.Token
	}

	env := &ports.AuthEnvelope{
		Tokens: ports.TokenPair{Access: access, Refresh: dto.RefreshToken},
		UserID: dto.UserID,
		Email:  dto.Email,
	}
	if dto.Role != "" {
		env.Role = domainauth.ParseRole(dto.Role)
	}
	kycRaw := dto.KycVerified
	if kycRaw == "" {
		kycRaw = dto.KycStatus
	}
	env.Kyc = domainauth.ParseKycStatus(kycRaw)

	if user, err := parseIdentity(dto.User); err == nil {
		env.User = user
	} else if dto.User == nil {
		// Some deployments return the identity at the top level instead of
		// under "user"; accept it under the same validation rules.
		top := userDTO{
			UserID:      dto.UserID,
			Email:       dto.Email,
			Role:        dto.Role,
			KycVerified: dto.KycVerified,
			KycStatus:   dto.KycStatus,
		}
		if user, topErr := parseIdentity(&top); topErr == nil {
			env.User = user
		}
	}

	return env, nil
}

// kycResponseDTO is the wire shape of the KYC status endpoint.
type kycResponseDTO struct {
	KycStatus   string `json:"kycStatus"`
	KycVerified string `json:"kycVerified"`
}

func parseKycResponse(data []byte) (domainauth.KycStatus, error) {
	var dto kycResponseDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return domainauth.KycUnknown, fmt.Errorf("decode kyc response: %w", err)
	}
	raw := dto.KycStatus
	if raw == "" {
		raw = dto.KycVerified
	}
	return domainauth.ParseKycStatus(raw), nil
}
