package visit

import (
	"fmt"
)

// ID is a visit identifier.
//
// Visit identifiers are positive integers that fit within a budget of six
// decimal digits. Once issued an ID is owned by the caller and never reused.
type ID uint32

// MaxID is the largest identifier that fits within the six digit budget.
const MaxID ID = 999_999

// Validate returns an error if id is outside the range [1, MaxID].
func (id ID) Validate() error {
	if id == 0 {
		return fmt.Errorf("visit ID must be positive")
	}

	if id > MaxID {
		return fmt.Errorf("visit ID %d exceeds the maximum of %d", uint32(id), uint32(MaxID))
	}

	return nil
}

// String returns the zero-padded six digit representation of id.
func (id ID) String() string {
	return fmt.Sprintf("%06d", uint32(id))
}

// ParseID returns the ID represented by n, validating its range.
func ParseID(n int64) (ID, error) {
	if n <= 0 || n > int64(MaxID) {
		return 0, fmt.Errorf("%d is not a valid visit ID, expected a value in [1, %d]", n, uint32(MaxID))
	}
	return ID(n), nil
}

// DesignID identifies the active instrument configuration ("design").
type DesignID int64

// UnresolvedDesignID is the sentinel used when no upstream source currently
// holds a design identifier.
const UnresolvedDesignID DesignID = -9999

// IsResolved returns true if d is not the [UnresolvedDesignID] sentinel.
func (d DesignID) IsResolved() bool {
	return d != UnresolvedDesignID
}
