package index

import (
	"context"

	"multitrack/model"
)

// Index is the read side of the social graph.
type Index interface {
	// Publications returns a best-effort recent set of a profile's posts
	// and comments.
	Publications(ctx context.Context, ownerID string) ([]model.PublicationRecord, error)
	// Profiles returns the profiles owned by a wallet address.
	Profiles(ctx context.Context, address string) ([]model.Profile, error)
	// Following returns the profiles a wallet address follows.
	Following(ctx context.Context, address string) ([]model.Profile, error)
}
