package visit

import (
	"fmt"
	"time"

	"github.com/subaru-pfs/seqno/marshaler"
	"google.golang.org/protobuf/encoding/protowire"
)

// Record is the durable description of a single identifier issuance.
type Record struct {
	// Visit is the issued identifier.
	Visit ID

	// Caller optionally identifies who or what requested the visit. An empty
	// string means the caller is unknown.
	Caller string

	// DesignID is the design that was active when the visit was issued, or
	// [UnresolvedDesignID].
	DesignID DesignID

	// IssuedAt is the time at which the identifier was issued.
	IssuedAt time.Time
}

const (
	visitField    protowire.Number = 1
	callerField   protowire.Number = 2
	designField   protowire.Number = 3
	issuedAtField protowire.Number = 4
)

// RecordMarshaler marshals records using the protocol buffers wire format.
var RecordMarshaler = marshaler.New(marshalRecord, unmarshalRecord)

func marshalRecord(rec Record) ([]byte, error) {
	var data []byte

	data = protowire.AppendTag(data, visitField, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(rec.Visit))

	if rec.Caller != "" {
		data = protowire.AppendTag(data, callerField, protowire.BytesType)
		data = protowire.AppendString(data, rec.Caller)
	}

	data = protowire.AppendTag(data, designField, protowire.VarintType)
	data = protowire.AppendVarint(data, protowire.EncodeZigZag(int64(rec.DesignID)))

	if !rec.IssuedAt.IsZero() {
		data = protowire.AppendTag(data, issuedAtField, protowire.VarintType)
		data = protowire.AppendVarint(data, protowire.EncodeZigZag(rec.IssuedAt.UnixNano()))
	}

	return data, nil
}

func unmarshalRecord(data []byte) (Record, error) {
	var rec Record

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Record{}, fmt.Errorf("cannot unmarshal visit record: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == visitField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Record{}, fmt.Errorf("cannot unmarshal visit ID: %w", protowire.ParseError(n))
			}
			rec.Visit = ID(v)
			data = data[n:]

		case num == callerField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Record{}, fmt.Errorf("cannot unmarshal caller: %w", protowire.ParseError(n))
			}
			rec.Caller = v
			data = data[n:]

		case num == designField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Record{}, fmt.Errorf("cannot unmarshal design ID: %w", protowire.ParseError(n))
			}
			rec.DesignID = DesignID(protowire.DecodeZigZag(v))
			data = data[n:]

		case num == issuedAtField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Record{}, fmt.Errorf("cannot unmarshal issue time: %w", protowire.ParseError(n))
			}
			rec.IssuedAt = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Record{}, fmt.Errorf("cannot skip unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return rec, nil
}
