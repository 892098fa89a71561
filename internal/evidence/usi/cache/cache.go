package cache

import (
	"encoding/json"
	"fmt"

	"usiverify/internal/evidence/usi/models"
)

// entry is the cached projection of an outcome. Raw remote bodies are never cached.
type entry struct {
	Kind     models.Kind `json:"kind"`
	Field    string      `json:"field,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Verified bool        `json:"verified"`
}

func toEntry(o models.Outcome) entry {
	return entry{Kind: o.Kind, Field: o.Field, Detail: o.Detail, Verified: o.Verified}
}

func (e entry) outcome() models.Outcome {
	return models.Outcome{Kind: e.Kind, Field: e.Field, Detail: e.Detail, Verified: e.Verified}
}

func encode(o models.Outcome) ([]byte, error) {
	data, err := json.Marshal(toEntry(o))
	if err != nil {
		return nil, fmt.Errorf("encode cached outcome: %w", err)
	}
	return data, nil
}

func decode(data []byte) (models.Outcome, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return models.Outcome{}, fmt.Errorf("decode cached outcome: %w", err)
	}
	return e.outcome(), nil
}
