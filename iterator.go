package civic

import "context"

// Iterator is a pull-based stream. Next returns ok=false once exhausted.
// Consumers may stop early; iterators hold no resources that need closing.
type Iterator[T any] interface {
	Next(ctx context.Context) (item T, ok bool, err error)
}

// SliceIterator iterates over an in-memory snapshot.
type SliceIterator[T any] struct {
	items []T
	pos   int
}

// NewSliceIterator wraps items. The slice must not be modified afterwards.
func NewSliceIterator[T any](items []T) *SliceIterator[T] {
	return &SliceIterator[T]{items: items}
}

func (it *SliceIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if it.pos >= len(it.items) {
		return zero, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item, true, nil
}

// ErrIterator fails on the first Next.
type ErrIterator[T any] struct {
	Err error
}

func (it ErrIterator[T]) Next(context.Context) (T, bool, error) {
	var zero T
	return zero, false, it.Err
}

// FuncIterator adapts a closure to Iterator.
type FuncIterator[T any] func(ctx context.Context) (T, bool, error)

func (f FuncIterator[T]) Next(ctx context.Context) (T, bool, error) {
	return f(ctx)
}

// Collect drains it. limit <= 0 means no limit.
func Collect[T any](ctx context.Context, it Iterator[T], limit int) ([]T, error) {
	var out []T
	for limit <= 0 || len(out) < limit {
		item, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out, nil
}
