package models

import (
	"fmt"
	"net/url"
	"time"

	"usiverify/pkg/domain"
)

// Date is a calendar date without time zone, as the verification service expects.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateFrom converts a time.Time to a Date in its own location.
func DateFrom(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date of birth: %w", err)
	}
	return DateFrom(t), nil
}

// IsZero reports whether no date was supplied.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Valid reports whether the date exists on the calendar.
func (d Date) Valid() bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Year < 1 {
		return false
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return t.Day() == d.Day && int(t.Month()) == d.Month
}

// String formats the date as YYYY-MM-DD with zero-padded month and day.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// VerificationRequest is one remote identity check. It is transient and never persisted.
type VerificationRequest struct {
	USI         domain.USI
	FirstName   string
	FamilyName  string
	DateOfBirth Date
}

// Form encodes the request as the verification service's form fields.
func (r VerificationRequest) Form() url.Values {
	v := url.Values{}
	v.Set("USI", r.USI.String())
	v.Set("FirstName", r.FirstName)
	v.Set("FamilyName", r.FamilyName)
	v.Set("DateOfBirth", r.DateOfBirth.String())
	return v
}

// StoredUSI is a user's persisted USI as presented to callers.
type StoredUSI struct {
	UserID    domain.UserID
	Value     string
	Display   string
	Exempt    bool
	Reason    domain.ExemptionReason
	UpdatedAt time.Time
}
