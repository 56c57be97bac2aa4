package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// unknownField substitutes for missing service or environment values so the
// same alert always hashes the same way.
const unknownField = "unknown"

// Fingerprint computes the deduplication key for a canonical alert: a
// hex-encoded sha256 over a fixed-order tuple of identity fields. Description,
// labels and the raw payload deliberately do not participate, so repeated
// deliveries with cosmetic differences collapse onto one alert record.
func Fingerprint(a *CanonicalAlert) string {
	service := a.ServiceName
	if service == "" {
		service = unknownField
	}
	environment := a.Environment
	if environment == "" {
		environment = unknownField
	}

	input := strings.Join([]string{
		a.AlertID,
		a.Title,
		service,
		a.Source,
		environment,
	}, "|")

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// SynthesizeAlertID derives a stable alert id for sources that do not send
// one. The id is a name-based UUID over the fields that identify the alert,
// so redeliveries of the same payload synthesize the same id.
func SynthesizeAlertID(source, title, service, host string) string {
	name := fmt.Sprintf("%s/%s/%s/%s", source, title, service, host)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
