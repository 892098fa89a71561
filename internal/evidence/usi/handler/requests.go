package handler

import (
	"strings"

	"usiverify/internal/evidence/usi/models"
	"usiverify/internal/evidence/usi/service"
	"usiverify/pkg/domain"
	dErrors "usiverify/pkg/domain-errors"
	"usiverify/pkg/platform/validate"
)

// USIRequest is the body for POST /usi/validate and PUT /users/{userID}/usi.
type USIRequest struct {
	UserID          string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	USI             string `json:"usi" validate:"max=32"`
	Exempt          bool   `json:"exempt"`
	ExemptionReason string `json:"exemption_reason,omitempty" validate:"max=32"`
	FirstName       string `json:"first_name,omitempty" validate:"max=100"`
	FamilyName      string `json:"family_name,omitempty" validate:"max=100"`
	DateOfBirth     string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`

	// Parsed values (populated by Validate)
	parsedUserID domain.UserID
	parsedDOB    *models.Date
}

// Validate checks sizes and formats and parses the optional fields.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *USIRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.UserID = strings.TrimSpace(r.UserID)
	r.USI = strings.TrimSpace(r.USI)
	r.ExemptionReason = strings.TrimSpace(r.ExemptionReason)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.FamilyName = strings.TrimSpace(r.FamilyName)
	r.DateOfBirth = strings.TrimSpace(r.DateOfBirth)

	if err := validate.Struct(r); err != nil {
		return err
	}

	if r.UserID != "" {
		userID, err := domain.ParseUserID(r.UserID)
		if err != nil {
			return err
		}
		r.parsedUserID = userID
	}

	if r.DateOfBirth != "" {
		d, err := models.ParseDate(r.DateOfBirth)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "date_of_birth must be YYYY-MM-DD")
		}
		r.parsedDOB = &d
	}
	return nil
}

// Input converts the request into a service input for userID. A nil userID
// falls back to the one in the body.
func (r *USIRequest) Input(userID domain.UserID) service.Input {
	if userID.IsNil() {
		userID = r.parsedUserID
	}
	return service.Input{
		UserID:          userID,
		USI:             r.USI,
		Exempt:          r.Exempt,
		ExemptionReason: r.ExemptionReason,
		FirstName:       r.FirstName,
		FamilyName:      r.FamilyName,
		DateOfBirth:     r.parsedDOB,
	}
}

// ChecksumRequest is the body for POST /usi/checksum.
type ChecksumRequest struct {
	Payload string `json:"payload" validate:"required,len=9"`
}

func (r *ChecksumRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Payload = strings.TrimSpace(r.Payload)
	return validate.Struct(r)
}

// TokenCheckRequest is the body for POST /usi/token/check.
type TokenCheckRequest struct {
	Server string `json:"server,omitempty" validate:"omitempty,url,max=255"`
	Token  string `json:"token" validate:"required,max=255"`
}

func (r *TokenCheckRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Server = strings.TrimRight(strings.TrimSpace(r.Server), "/")
	r.Token = strings.TrimSpace(r.Token)
	return validate.Struct(r)
}
