package visit_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/subaru-pfs/seqno/visit"
)

func TestRecordMarshaler(t *testing.T) {
	t.Run("it preserves every field", func(t *testing.T) {
		expect := Record{
			Visit:    123456,
			Caller:   "iic",
			DesignID: -0x1234567890,
			IssuedAt: time.Date(2026, 10, 18, 9, 30, 0, 123, time.UTC),
		}

		data, err := RecordMarshaler.Marshal(expect)
		if err != nil {
			t.Fatal(err)
		}

		actual, err := RecordMarshaler.Unmarshal(data)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(expect, actual); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it omits the caller when unknown", func(t *testing.T) {
		rec := Record{Visit: 1, DesignID: UnresolvedDesignID}

		data, err := RecordMarshaler.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}

		actual, err := RecordMarshaler.Unmarshal(data)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(rec, actual); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it rejects truncated data", func(t *testing.T) {
		data, err := RecordMarshaler.Marshal(Record{Visit: 1, Caller: "<caller>"})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := RecordMarshaler.Unmarshal(data[:5]); err == nil {
			t.Fatal("expected an error")
		}
	})
}
