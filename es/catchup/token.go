package catchup

import (
	"encoding/base64"
	"encoding/json"
)

// cursor is a position in the logical cursor space spanning every object name
type cursor struct {
	ObjectIndex   int     `json:"ObjectIndex"`
	ProviderToken *string `json:"ProviderToken"`
}

// EncodeContinuationToken builds the opaque token resuming at the object name
// index with the provider token, nil to start that object name from its first page
func EncodeContinuationToken(objectIndex int, providerToken *string) string {
	blob, _ := json.Marshal(cursor{
		ObjectIndex:   objectIndex,
		ProviderToken: providerToken,
	})
	return base64.StdEncoding.EncodeToString(blob)
}

// decodeContinuationToken never fails, anything unreadable or out of range
// starts from the beginning
func decodeContinuationToken(token string, objectNames int) cursor {
	start := cursor{}
	if token == "" {
		return start
	}

	blob, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return start
	}
	var c cursor
	if err := json.Unmarshal(blob, &c); err != nil {
		return start
	}
	if c.ObjectIndex < 0 || c.ObjectIndex >= objectNames {
		return start
	}
	return c
}
