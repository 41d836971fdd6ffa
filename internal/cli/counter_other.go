//go:build !unix

package cli

import (
	"errors"

	"github.com/subaru-pfs/seqno/config"
	"github.com/subaru-pfs/seqno/counter"
)

func newFileCounter(config.Config) (counter.Counter, error) {
	return nil, errors.New("the file counter requires flock(2), which is not available on this platform")
}
