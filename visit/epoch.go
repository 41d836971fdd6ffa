package visit

import (
	"fmt"
	"strings"
)

// Epoch is the scope under which visit identifiers are counted.
//
// Identifiers are unique only within an epoch, and visit records are keyed by
// identifier alone, so a deployment must not move to a new epoch unless the
// new epoch's base lies above every identifier already issued.
type Epoch string

// DefaultEpoch is the epoch used when none is configured. It never rotates,
// so identifiers keep increasing for the lifetime of the counter.
const DefaultEpoch Epoch = "pfs_visit"

// Validate returns an error if e can not be used as a storage key.
func (e Epoch) Validate() error {
	if e == "" {
		return fmt.Errorf("epoch must not be empty")
	}

	if strings.ContainsAny(string(e), `/\`) || strings.Contains(string(e), "..") {
		return fmt.Errorf("epoch %q must not contain path separators", string(e))
	}

	return nil
}

func (e Epoch) String() string {
	return string(e)
}
