package typeddata

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// jsonMessage is a JSON representation of the [Message] handed to remote
// signers.
type jsonMessage struct {
	Domain      Domain             `json:"domain"`
	Types       map[string][]Field `json:"types"`
	PrimaryType string             `json:"primaryType"`
	Message     Rating             `json:"message"`
	Digest      string             `json:"digest,omitempty"`
	ID          string             `json:"id,omitempty"`
}

// MarshalJSON implements [json.Marshaler]. Digest is hex-encoded big-endian.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMessage{
		Domain: m.Domain,
		Types: map[string][]Field{
			DomainSchema.Name: DomainSchema.Fields,
			PlaceRating.Name:  PlaceRating.Fields,
		},
		PrimaryType: PlaceRating.Name,
		Message:     m.Rating,
		Digest:      hex.EncodeToString(m.Digest().BytesBE()),
		ID:          m.ID(),
	})
}

// UnmarshalJSON implements [json.Unmarshaler]. Schemas must be exactly the
// ones of the current package, digest (if any) must match the decoded
// payload.
func (m *Message) UnmarshalJSON(b []byte) error {
	var j jsonMessage

	err := json.Unmarshal(b, &j)
	if err != nil {
		return err
	}

	if j.PrimaryType != PlaceRating.Name {
		return fmt.Errorf("unsupported primary type '%s'", j.PrimaryType)
	}

	for _, s := range []Schema{DomainSchema, PlaceRating} {
		if !slices.Equal(j.Types[s.Name], s.Fields) {
			return fmt.Errorf("schema mismatch for type '%s'", s.Name)
		}
	}

	res := Message{Domain: j.Domain, Rating: j.Message}

	if j.Digest != "" && j.Digest != hex.EncodeToString(res.Digest().BytesBE()) {
		return errors.New("digest mismatch")
	}

	*m = res

	return nil
}
