package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HotelCode is the oracle's hotel identifier. The oracle and the storefront
// send it both as a JSON string and as a number.
type HotelCode string

func (c *HotelCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = HotelCode(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("hotel code: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*c = HotelCode(strconv.FormatInt(i, 10))
		return nil
	}
	*c = HotelCode(n.String())
	return nil
}

// JoinCodes renders codes the way the oracle expects them in a single field.
func JoinCodes(codes []HotelCode) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
