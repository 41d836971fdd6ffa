package dynamokv

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/subaru-pfs/seqno/driver/aws/internal/awsx"
	"github.com/subaru-pfs/seqno/driver/aws/internal/dynamox"
	"github.com/subaru-pfs/seqno/internal/errorx"
	"github.com/subaru-pfs/seqno/kv"
)

type keyspace struct {
	Client    *dynamodb.Client
	OnRequest func(any) []func(*dynamodb.Options)

	table string
	name  string
}

func (ks *keyspace) Name() string {
	return ks.name
}

func (ks *keyspace) key(k []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyspaceAttr: &types.AttributeValueMemberS{Value: ks.name},
		keyAttr:      &types.AttributeValueMemberB{Value: k},
	}
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, kv.Revision, error) {
	out, err := awsx.Do(
		ctx,
		ks.Client.GetItem,
		ks.OnRequest,
		&dynamodb.GetItemInput{
			TableName:            &ks.table,
			Key:                  ks.key(k),
			ConsistentRead:       aws.Bool(true),
			ProjectionExpression: aws.String(`#V, #R`),
			ExpressionAttributeNames: map[string]string{
				"#V": valueAttr,
				"#R": revisionAttr,
			},
		},
	)
	if err != nil || out.Item == nil {
		return nil, 0, err
	}

	return unmarshalPair(out.Item)
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	out, err := awsx.Do(
		ctx,
		ks.Client.GetItem,
		ks.OnRequest,
		&dynamodb.GetItemInput{
			TableName:            &ks.table,
			Key:                  ks.key(k),
			ConsistentRead:       aws.Bool(true),
			ProjectionExpression: &nonExistentAttr,
		},
	)
	if err != nil {
		return false, err
	}

	return out.Item != nil, nil
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte, r kv.Revision) (err error) {
	defer errorx.WrapUnless(&err, kv.IsConflict, "cannot set key in %q keyspace", ks.name)

	switch {
	case len(v) == 0 && r == 0:
		var ok bool
		ok, err = ks.Has(ctx, k)
		if err == nil && ok {
			return ks.conflict(k, r)
		}
	case len(v) == 0:
		err = ks.delete(ctx, k, r)
	default:
		err = ks.put(ctx, k, v, r)
	}

	if dynamox.IsConditionalCheckFailed(err) {
		return ks.conflict(k, r)
	}

	return err
}

// put writes v to k, on the condition that k's revision is r.
func (ks *keyspace) put(ctx context.Context, k, v []byte, r kv.Revision) error {
	item := ks.key(k)
	item[valueAttr] = &types.AttributeValueMemberB{Value: v}
	item[revisionAttr] = revisionValue(r + 1)

	in := &dynamodb.PutItemInput{
		TableName: &ks.table,
		Item:      item,
	}

	if r == 0 {
		in.ConditionExpression = aws.String(`attribute_not_exists(#K)`)
		in.ExpressionAttributeNames = map[string]string{
			"#K": keyAttr,
		}
	} else {
		in.ConditionExpression = aws.String(`#R = :R`)
		in.ExpressionAttributeNames = map[string]string{
			"#R": revisionAttr,
		}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":R": revisionValue(r),
		}
	}

	_, err := awsx.Do(ctx, ks.Client.PutItem, ks.OnRequest, in)
	return err
}

// delete removes k, on the condition that k's revision is r.
func (ks *keyspace) delete(ctx context.Context, k []byte, r kv.Revision) error {
	_, err := awsx.Do(
		ctx,
		ks.Client.DeleteItem,
		ks.OnRequest,
		&dynamodb.DeleteItemInput{
			TableName:           &ks.table,
			Key:                 ks.key(k),
			ConditionExpression: aws.String(`#R = :R`),
			ExpressionAttributeNames: map[string]string{
				"#R": revisionAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":R": revisionValue(r),
			},
		},
	)
	return err
}

func (ks *keyspace) conflict(k []byte, r kv.Revision) error {
	return kv.ConflictError[[]byte]{
		Keyspace: ks.name,
		Key:      k,
		Revision: r,
	}
}

func (ks *keyspace) Range(ctx context.Context, fn kv.BinaryRangeFunc) error {
	return dynamox.Range(
		ctx,
		ks.Client,
		ks.OnRequest,
		&dynamodb.QueryInput{
			TableName:              &ks.table,
			ConsistentRead:         aws.Bool(true),
			KeyConditionExpression: aws.String(`#S = :S`),
			ProjectionExpression:   aws.String(`#K, #V, #R`),
			ExpressionAttributeNames: map[string]string{
				"#S": keyspaceAttr,
				"#K": keyAttr,
				"#V": valueAttr,
				"#R": revisionAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":S": &types.AttributeValueMemberS{Value: ks.name},
			},
		},
		func(ctx context.Context, item map[string]types.AttributeValue) (bool, error) {
			k, err := dynamox.AttrAs[*types.AttributeValueMemberB](item, keyAttr)
			if err != nil {
				return false, err
			}

			v, r, err := unmarshalPair(item)
			if err != nil {
				return false, err
			}

			return fn(ctx, k.Value, v, r)
		},
	)
}

func (ks *keyspace) Close() error {
	return nil
}

func unmarshalPair(item map[string]types.AttributeValue) ([]byte, kv.Revision, error) {
	v, err := dynamox.AttrAs[*types.AttributeValueMemberB](item, valueAttr)
	if err != nil {
		return nil, 0, err
	}

	r, err := dynamox.AttrAs[*types.AttributeValueMemberN](item, revisionAttr)
	if err != nil {
		return nil, 0, err
	}

	n, err := strconv.ParseUint(r.Value, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("item is corrupt: invalid revision: %w", err)
	}

	return v.Value, kv.Revision(n), nil
}

func revisionValue(r kv.Revision) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{
		Value: strconv.FormatUint(uint64(r), 10),
	}
}
