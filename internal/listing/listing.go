// Package listing enumerates the entries behind a channel, profile or
// playlist URL.
package listing

import (
	"context"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// Lister returns up to limit raw entries for url, in source order. Entries
// are not filtered; callers apply the validity filter.
type Lister interface {
	List(ctx context.Context, url string, limit int) ([]domain.ListingEntry, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, url string, limit int) ([]domain.ListingEntry, error)

// List calls f.
func (f ListerFunc) List(ctx context.Context, url string, limit int) ([]domain.ListingEntry, error) {
	return f(ctx, url, limit)
}
