// README: Membership rows and entry classification results.
package membership

import (
	"strings"
	"time"

	"gatehouse/internal/types"
)

type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusPending  Status = "PENDING"
	StatusRefunded Status = "REFUNDED"
)

// Membership is one paid coverage period for a plate. No two SUCCESS rows
// for the same member may overlap; the store and the schema both enforce it.
type Membership struct {
	ID        types.ID
	MemberID  types.ID
	CarNumber string
	StartDate time.Time // date precision, inclusive
	EndDate   time.Time // inclusive
	Status    Status
}

// Classification is the pre-entry verdict for a plate. Blocked short-circuits
// the whole pipeline; WarnAdmin proceeds with an out-of-band alert; an active
// membership skips fee computation entirely.
type Classification struct {
	Blocked      bool
	BlockMessage string
	WarnAdmin    bool
	WarnMessage  string
	MemberActive bool
}

// NormalizePlate canonicalizes a plate for comparison: uppercase, no
// whitespace. Recognition hardware is inconsistent about both.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}
