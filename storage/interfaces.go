package storage

import (
	"context"

	"drive-deals-scraper/models"
)

// RecordStore is the view of a listing or deal file the liveness pass needs.
type RecordStore interface {
	Path() string
	Exists() bool
	Duplicates() int
	Items() []models.EnrichedListing
	Replace(items []models.EnrichedListing)
	Save() error
}

// ListingMirror is an optional secondary copy of the listing store.
type ListingMirror interface {
	Write(ctx context.Context, listings []models.EnrichedListing, isDeal func(id string) bool) error
	DeleteListings(ctx context.Context, ids []string) error
	ClearDeals(ctx context.Context, ids []string) error
	Close() error
}

var (
	_ RecordStore   = (*ListingStore)(nil)
	_ RecordStore   = (*DealStore)(nil)
	_ ListingMirror = (*PostgresWriter)(nil)
)
