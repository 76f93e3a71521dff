package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedClaim = errors.New("malformed claim")

// Claim is a self-asserted identity, typically scanned from a QR code.
type Claim struct {
	ExternalKey string
	Name        string
}

// keyString accepts a JSON string or number.
type keyString string

func (k *keyString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*k = keyString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("key must be a string or number")
	}
	*k = keyString(n.String())
	return nil
}

type claimPayload struct {
	ExternalKey keyString `json:"external_key"`
	RollNo      keyString `json:"roll_no"`
	Name        string    `json:"name"`
}

// ParseClaim decodes {"external_key": ..., "name": ...}. The older
// {"roll_no": ...} spelling is accepted as an alias.
func ParseClaim(payload []byte) (Claim, error) {
	var p claimPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Claim{}, fmt.Errorf("%w: %v", ErrMalformedClaim, err)
	}
	key := strings.TrimSpace(string(p.ExternalKey))
	if key == "" {
		key = strings.TrimSpace(string(p.RollNo))
	}
	if key == "" {
		return Claim{}, fmt.Errorf("%w: missing external_key", ErrMalformedClaim)
	}
	return Claim{ExternalKey: key, Name: strings.TrimSpace(p.Name)}, nil
}
