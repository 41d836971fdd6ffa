package marshaler_test

import (
	"testing"

	. "github.com/subaru-pfs/seqno/marshaler"
)

func TestUint64(t *testing.T) {
	data, err := Uint64.Marshal(0x0102030405060708)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := string(data), "\x01\x02\x03\x04\x05\x06\x07\x08"; got != want {
		t.Fatalf("unexpected encoding: got %q, want %q", got, want)
	}

	v, err := Uint64.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}

	if v != 0x0102030405060708 {
		t.Fatalf("unexpected value: got %#x", v)
	}

	if _, err := Uint64.Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for short data")
	}
}

func TestDecimalInt64(t *testing.T) {
	for _, c := range []struct {
		Value int64
		Text  string
	}{
		{0, "0"},
		{42, "42"},
		{-9999, "-9999"},
	} {
		data, err := DecimalInt64.Marshal(c.Value)
		if err != nil {
			t.Fatal(err)
		}

		if string(data) != c.Text {
			t.Fatalf("unexpected encoding: got %q, want %q", data, c.Text)
		}

		v, err := DecimalInt64.Unmarshal(data)
		if err != nil {
			t.Fatal(err)
		}

		if v != c.Value {
			t.Fatalf("unexpected value: got %d, want %d", v, c.Value)
		}
	}

	if _, err := DecimalInt64.Unmarshal([]byte("<not a number>")); err == nil {
		t.Fatal("expected an error")
	}
}
