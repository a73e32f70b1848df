package ids

import (
	"strings"

	"github.com/google/uuid"
)

// ConnID generates an opaque connection handle, unique per
// transport-level session.
func ConnID() string {
	return "c-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
