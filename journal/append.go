package journal

import (
	"context"
)

// AppendWithConflictResolution appends a record to j using fn to resolve
// optimistic concurrency conflicts. It returns the new journal end position.
//
// If a conflict occurs fn is called and the append is retried with the
// position it returns. If fn returns an error the append is not retried and
// the error is returned.
func AppendWithConflictResolution[T any](
	ctx context.Context,
	j Journal[T],
	end Position,
	rec T,
	fn func(context.Context, Position) (Position, error),
) (Position, error) {
	for {
		err := j.Append(ctx, end, rec)
		if !IsConflict(err) {
			if err != nil {
				return 0, err
			}
			return end + 1, nil
		}

		end, err = fn(ctx, end)
		if err != nil {
			return 0, err
		}
	}
}

// Append appends a record to the end of j, re-reading the bounds of the
// journal whenever another writer has appended first. It returns the position
// of the new record.
func Append[T any](ctx context.Context, j Journal[T], rec T) (Position, error) {
	bounds, err := j.Bounds(ctx)
	if err != nil {
		return 0, err
	}

	end, err := AppendWithConflictResolution(
		ctx,
		j,
		bounds.End,
		rec,
		func(ctx context.Context, _ Position) (Position, error) {
			bounds, err := j.Bounds(ctx)
			return bounds.End, err
		},
	)
	if err != nil {
		return 0, err
	}

	return end - 1, nil
}
