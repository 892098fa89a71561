// Package messages renders verification outcomes as user-facing text.
package messages

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"usiverify/internal/evidence/usi/models"
	"usiverify/pkg/domain"
)

// Message keys.
const (
	KeyAPIInvalidToken      = "apiinvalidtoken"
	KeyAPIQuotaReached      = "apiquotareached"
	KeyAPIRequestFailed     = "apirequestfailed"
	KeyAPIRequestFailedCode = "apirequestfailedcode"
	KeyAPIRequiresDOB       = "apirequiresdob"

	KeyUSIValid                  = "usivalid"
	KeyUSIVerified               = "usiverified"
	KeyUSIExemptRecorded         = "usiexemptrecorded"
	KeyUSIDeactivated            = "usideactivated"
	KeyUSIExemptionReasonMissing = "usiexemptionreasonmissing"
	KeyUSIInvalid                = "usiinvalid"
	KeyUSIInvalidAlreadyExists   = "usiinvalidalreadyexists"
	KeyUSIInvalidBlank           = "usiinvalidblank"
	KeyUSIInvalidCharacters      = "usiinvalidcharacters"
	KeyUSIInvalidChecksum        = "usiinvalidchecksum"
	KeyUSIInvalidLength          = "usiinvalidlength"
	KeyUSIMismatchDOB            = "usimismatchdob"
	KeyUSIMismatchName           = "usimismatchname"

	KeyExemptionCourse        = "usiexemptioncompleted"
	KeyExemptionDefence       = "usiexemptiondefence"
	KeyExemptionIndividual    = "usiexemptionindividual"
	KeyExemptionInternational = "usiexemptioninternational"
)

var english = map[string]string{
	KeyAPIInvalidToken:      "Invalid API token.",
	KeyAPIQuotaReached:      "USI verification request quota reached.",
	KeyAPIRequestFailed:     "Request to the USI verification service failed.",
	KeyAPIRequestFailedCode: "Request to the USI verification service failed, HTTP response code %d.",
	KeyAPIRequiresDOB:       "USI verification requires a date of birth.",

	KeyUSIValid:                  "USI is valid.",
	KeyUSIVerified:               "USI verified.",
	KeyUSIExemptRecorded:         "USI exemption recorded.",
	KeyUSIDeactivated:            "USI has been de-activated.",
	KeyUSIExemptionReasonMissing: "USI exemption reason is missing.",
	KeyUSIInvalid:                "USI is invalid.",
	KeyUSIInvalidAlreadyExists:   "USI already exists for another user.",
	KeyUSIInvalidBlank:           "Invalid USI, blank or empty.",
	KeyUSIInvalidCharacters:      "Invalid characters in USI.",
	KeyUSIInvalidChecksum:        "Invalid USI checksum please re-check USI.",
	KeyUSIInvalidLength:          "Invalid USI length, must be 10 characters.",
	KeyUSIMismatchDOB:            "USI does not match date of birth in your user profile.",
	KeyUSIMismatchName:           "USI does not match %s in your user profile.",

	KeyExemptionCourse:        "Course completed prior to introduction of USI system on 1 Jan 2015.",
	KeyExemptionDefence:       "RTO granted exemption for defence and security personnel.",
	KeyExemptionIndividual:    "Individual student exemption granted and verified.",
	KeyExemptionInternational: "International student where the course is studied entirely outside Australia.",
}

// Catalog holds every supported translation.
var Catalog = newCatalog()

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range english {
		if err := b.SetString(language.English, key, msg); err != nil {
			panic(err)
		}
	}
	return b
}

// Printer renders messages for one language.
type Printer struct {
	p *message.Printer
}

// New returns a Printer for tag, falling back to English.
func New(tag language.Tag) *Printer {
	return &Printer{p: message.NewPrinter(tag, message.Catalog(Catalog))}
}

// Lookup formats the message stored under key. Unknown keys render as the key itself.
func (p *Printer) Lookup(key string, params ...any) string {
	return p.p.Sprintf(key, params...)
}

// Render describes outcome to the end user.
func (p *Printer) Render(o models.Outcome) string {
	key, params := KeyFor(o)
	return p.Lookup(key, params...)
}

// KeyFor maps an outcome to its message key and parameters.
func KeyFor(o models.Outcome) (string, []any) {
	switch o.Kind {
	case models.KindValid:
		switch {
		case o.Exemption != "":
			return KeyUSIExemptRecorded, nil
		case o.Verified:
			return KeyUSIVerified, nil
		default:
			return KeyUSIValid, nil
		}
	case models.KindInvalidFormat:
		switch o.Field {
		case models.FieldBlank:
			return KeyUSIInvalidBlank, nil
		case models.FieldLength:
			return KeyUSIInvalidLength, nil
		case models.FieldCharacters:
			return KeyUSIInvalidCharacters, nil
		default:
			return KeyUSIInvalid, nil
		}
	case models.KindInvalidChecksum:
		return KeyUSIInvalidChecksum, nil
	case models.KindTokenInvalid:
		return KeyAPIInvalidToken, nil
	case models.KindQuotaExceeded:
		return KeyAPIQuotaReached, nil
	case models.KindDeactivated:
		return KeyUSIDeactivated, nil
	case models.KindNameMismatch:
		return KeyUSIMismatchName, []any{o.Field}
	case models.KindDobMismatch:
		return KeyUSIMismatchDOB, nil
	case models.KindTransportFailure:
		if o.StatusCode > 0 {
			return KeyAPIRequestFailedCode, []any{o.StatusCode}
		}
		return KeyAPIRequestFailed, nil
	case models.KindDobRequired:
		return KeyAPIRequiresDOB, nil
	case models.KindAlreadyInUse:
		return KeyUSIInvalidAlreadyExists, nil
	case models.KindExemptionReasonMissing:
		return KeyUSIExemptionReasonMissing, nil
	default:
		return KeyUSIInvalid, nil
	}
}

// ExemptionKey returns the message key describing an exemption reason.
func ExemptionKey(r domain.ExemptionReason) string {
	switch r {
	case domain.ExemptionCourse:
		return KeyExemptionCourse
	case domain.ExemptionDefence:
		return KeyExemptionDefence
	case domain.ExemptionIndividual:
		return KeyExemptionIndividual
	case domain.ExemptionInternational:
		return KeyExemptionInternational
	default:
		return ""
	}
}

var matcher = language.NewMatcher(Catalog.Languages())

// ForAcceptLanguage returns a Printer for the best supported match of an
// Accept-Language header value.
func ForAcceptLanguage(header string) *Printer {
	tag, _ := language.MatchStrings(matcher, header)
	return New(tag)
}
