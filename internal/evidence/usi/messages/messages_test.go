package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"usiverify/internal/evidence/usi/models"
	"usiverify/pkg/domain"
)

func TestRender(t *testing.T) {
	p := New(language.English)

	tests := []struct {
		outcome models.Outcome
		want    string
	}{
		{models.Valid(false), "USI is valid."},
		{models.Valid(true), "USI verified."},
		{models.Exempt(domain.ExemptionCourse), "USI exemption recorded."},
		{models.InvalidFormat(models.FieldLength), "Invalid USI length, must be 10 characters."},
		{models.InvalidFormat(models.FieldCharacters), "Invalid characters in USI."},
		{models.InvalidFormat(models.FieldBlank), "Invalid USI, blank or empty."},
		{models.RemoteInvalid("Locked"), "USI is invalid."},
		{models.InvalidChecksum(), "Invalid USI checksum please re-check USI."},
		{models.TokenInvalid(), "Invalid API token."},
		{models.QuotaExceeded(), "USI verification request quota reached."},
		{models.Deactivated(), "USI has been de-activated."},
		{models.NameMismatch("FamilyName"), "USI does not match FamilyName in your user profile."},
		{models.DobMismatch(), "USI does not match date of birth in your user profile."},
		{models.TransportFailure("provider_outage", 503, "down", ""), "Request to the USI verification service failed, HTTP response code 503."},
		{models.TransportFailure("timeout", 0, "", "deadline"), "Request to the USI verification service failed."},
		{models.DobRequired(), "USI verification requires a date of birth."},
		{models.AlreadyInUse(), "USI already exists for another user."},
		{models.ExemptionReasonMissing(), "USI exemption reason is missing."},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Render(tt.outcome))
		})
	}
}

func TestRender_NeverLeaksRawBody(t *testing.T) {
	p := New(language.English)
	got := p.Render(models.TransportFailure("provider_outage", 500, "<pre>stack trace</pre>", ""))
	assert.NotContains(t, got, "stack trace")
}

func TestLookup_FallsBackToEnglish(t *testing.T) {
	p := New(language.French)
	assert.Equal(t, "Invalid API token.", p.Lookup(KeyAPIInvalidToken))
}

func TestExemptionKey(t *testing.T) {
	p := New(language.English)
	for _, r := range domain.ExemptionReasons() {
		key := ExemptionKey(r)
		assert.NotEmpty(t, key)
		assert.NotEqual(t, key, p.Lookup(key), "reason %s has a description", r)
	}
	assert.Empty(t, ExemptionKey("unknown"))
}

func TestCatalogCoversEveryKind(t *testing.T) {
	p := New(language.English)
	kinds := []models.Kind{
		models.KindValid, models.KindInvalidFormat, models.KindInvalidChecksum, models.KindTokenInvalid,
		models.KindQuotaExceeded, models.KindDeactivated, models.KindNameMismatch, models.KindDobMismatch,
		models.KindTransportFailure, models.KindDobRequired, models.KindAlreadyInUse, models.KindExemptionReasonMissing,
	}
	for _, k := range kinds {
		key, _ := KeyFor(models.Outcome{Kind: k})
		_, ok := english[key]
		assert.True(t, ok, "kind %s maps to a registered key", k)
		assert.NotEqual(t, key, p.Render(models.Outcome{Kind: k}))
	}
}

func TestForAcceptLanguage(t *testing.T) {
	for _, header := range []string{"", "en-AU,en;q=0.9", "de-DE", "not a header"} {
		p := ForAcceptLanguage(header)
		assert.Equal(t, "USI verified.", p.Render(models.Valid(true)), "header %q", header)
	}
}
