package civic

import "context"

// Paginate returns up to limit items that come after cursor in it.
//
// The source is re-scanned from the start on every call: items up to and
// including the one whose id equals cursor are skipped. A cursor that never
// shows up (e.g. its item got filtered out since) yields an empty page rather
// than an error. Items appended ahead of the cursor between calls shift the
// following pages; the log offers no stable offsets to seek to.
//
// limit <= 0 returns everything after the cursor.
func Paginate[T any](ctx context.Context, it Iterator[T], limit int, cursor string, idOf func(T) string) ([]T, error) {
	collecting := cursor == ""
	page := make([]T, 0)
	for limit <= 0 || len(page) < limit {
		item, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !collecting {
			if idOf(item) == cursor {
				collecting = true
			}
			continue
		}
		page = append(page, item)
	}
	return page, nil
}
