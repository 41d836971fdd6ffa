package dynamokv_test

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/subaru-pfs/seqno/counter"
	. "github.com/subaru-pfs/seqno/driver/aws/dynamokv"
	"github.com/subaru-pfs/seqno/driver/aws/internal/dynamox"
	"github.com/subaru-pfs/seqno/internal/testx"
	"github.com/subaru-pfs/seqno/kv"
	"github.com/subaru-pfs/seqno/metadata"
	"github.com/subaru-pfs/seqno/visit"
)

func TestStore(t *testing.T) {
	client, table := setup(t)
	store := NewBinaryStore(client, table)

	t.Run("kv", func(t *testing.T) {
		kv.RunTests(t, store)
	})

	t.Run("counter", func(t *testing.T) {
		counter.RunTests(
			t,
			func(_ *testing.T, base visit.ID) counter.Counter {
				return counter.NewKeyspaceCounter(store, counter.WithBase(base))
			},
		)
	})

	t.Run("metadata", func(t *testing.T) {
		p := metadata.NewKeyspaceProvider(store, "iic")

		if err := p.Publish(t.Context(), 0x1234); err != nil {
			t.Fatal(err)
		}

		d, ok, err := p.DesignID(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		if !ok || d != 0x1234 {
			t.Fatalf("unexpected design ID: got %d (%t), want %d", d, ok, 0x1234)
		}
	})
}

func TestWithRequestHook(t *testing.T) {
	client, table := setup(t)

	var requests int
	store := NewBinaryStore(
		client,
		table,
		WithRequestHook(func(any) []func(*dynamodb.Options) {
			requests++
			return nil
		}),
	)

	ks, err := store.Open(t.Context(), "<keyspace>")
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	before := requests

	if err := ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 0); err != nil {
		t.Fatal(err)
	}

	if requests != before+1 {
		t.Fatalf("unexpected request count: got %d, want %d", requests, before+1)
	}
}

func setup(t testing.TB) (*dynamodb.Client, string) {
	client := dynamox.NewTestClient(t)
	table := testx.UniqueName("kvstore")

	t.Cleanup(func() {
		ctx := testx.ContextForCleanup(t)
		if err := dynamox.DeleteTableIfExists(ctx, client, table, nil); err != nil {
			t.Error(err)
		}
	})

	return client, table
}
