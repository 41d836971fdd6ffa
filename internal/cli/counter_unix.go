//go:build unix

package cli

import (
	"github.com/subaru-pfs/seqno/config"
	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/file/filecounter"
)

func newFileCounter(cfg config.Config) (counter.Counter, error) {
	return filecounter.New(
		cfg.CounterRoot,
		filecounter.WithBase(cfg.CounterBase),
	), nil
}
