package avetmiss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"usiverify/internal/evidence/usi/models"
	"usiverify/internal/evidence/usi/providers"
)

// Remote vocabulary.
const (
	statusValid       = "Valid"
	statusDeactivated = "Deactivated"
	match             = "Match"
)

type verifyResponse struct {
	Quota     *quota        `json:"quota"`
	USIStatus *string       `json:"USIStatus"`
	Response  *matchResults `json:"response"`
}

type matchResults struct {
	Items            []string `json:"Items"`
	ItemsElementName []string `json:"ItemsElementName"`
	DateOfBirth      *string  `json:"DateOfBirth"`
}

// quota accepts a JSON number or a numeric string, truncated toward zero.
type quota int64

func (q *quota) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("quota %q is not numeric", raw)
	}
	*q = quota(math.Trunc(f))
	return nil
}

// parseVerifyResponse classifies a verification response. Checks run in a
// fixed order and the first failing check decides the outcome.
func parseVerifyResponse(status int, body []byte) models.Outcome {
	if status != http.StatusOK {
		return models.TransportFailure(
			string(providers.CategoryForStatus(status)), status, string(body),
			fmt.Sprintf("unexpected status %d", status),
		)
	}

	badData := func(detail string) models.Outcome {
		return models.TransportFailure(string(providers.ErrorBadData), status, string(body), detail)
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return badData("malformed response: " + err.Error())
	}

	if resp.Quota == nil {
		return badData("response missing quota")
	}
	// A 200 body can still signal an exhausted quota.
	if *resp.Quota <= 0 {
		return models.QuotaExceeded()
	}

	if resp.USIStatus == nil {
		return badData("response missing USIStatus")
	}
	if *resp.USIStatus != statusValid {
		if *resp.USIStatus == statusDeactivated {
			return models.Deactivated()
		}
		return models.RemoteInvalid(*resp.USIStatus)
	}

	if resp.Response == nil {
		return badData("response missing match results")
	}
	// First mismatch wins; later items are not inspected.
	for i, item := range resp.Response.Items {
		if item == match {
			continue
		}
		if i >= len(resp.Response.ItemsElementName) {
			return badData(fmt.Sprintf("match item %d has no element name", i))
		}
		return models.NameMismatch(resp.Response.ItemsElementName[i])
	}

	if resp.Response.DateOfBirth == nil {
		return badData("response missing DateOfBirth")
	}
	if *resp.Response.DateOfBirth != match {
		return models.DobMismatch()
	}

	return models.Valid(true)
}
