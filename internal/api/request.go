package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodySize caps request bodies at 1 MiB.
const maxBodySize = 1 << 20

// DecodeJSON decodes the request body into v, rejecting unknown sizes
// over the cap and trailing garbage.
func DecodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
