package grant

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewULID generates a new lexicographically sortable ID string, for use as
// an application-assigned primary key on string-typed non-auto-increment ID
// columns (the ULID equivalent of calling uuid.New().String() before Create).
// Unlike a UUID, sequentially generated ULIDs sort in generation order,
// which keeps btree index inserts sequential under high write volume.
func NewULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NewULIDAt is NewULID with an explicit timestamp, for backfilling IDs onto
// records whose creation time is already known (migrations, imports).
func NewULIDAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// generateLogicalID returns a freshly generated ID for a column declared
// with grant:"logical_type:<uuid|ulid|objectid>", or an error if typ names
// none of the three supported strategies.
func generateLogicalID(typ string) (any, error) {
	switch typ {
	case "uuid":
		return uuid.New().String(), nil
	case "ulid":
		return NewULID(), nil
	case "objectid":
		return primitive.NewObjectID().Hex(), nil
	default:
		return nil, fmt.Errorf("grant: unknown logical_type %q", typ)
	}
}
