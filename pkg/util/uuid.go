package util

import (
	"encoding/json"

	"github.com/google/uuid"
)

// HashUUID derives a stable name based UUID from the JSON form of value
func HashUUID(value any) (uuid.UUID, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.NewMD5(uuid.NameSpaceOID, raw), nil
}
