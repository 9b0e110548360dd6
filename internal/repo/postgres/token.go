package postgres

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// continuation is the decoded form of a query continuation token: the sort
// position of the last record of the previous page.
type continuation struct {
	Updated             time.Time `json:"updated"`
	CollectionsWorkflow string    `json:"collections_workflow"`
	ItemIDs             string    `json:"itemids"`
}

func encodeToken(c continuation) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode continuation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeToken(token string) (continuation, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return continuation{}, fmt.Errorf("decode continuation token: %w", err)
	}
	var c continuation
	if err := json.Unmarshal(data, &c); err != nil {
		return continuation{}, fmt.Errorf("decode continuation token: %w", err)
	}
	return c, nil
}
