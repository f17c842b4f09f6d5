package health

import "context"

// IndexPinger checks that the search index is open and readable.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// TokenStorePinger checks auth token store availability.
type TokenStorePinger interface {
	Ping(ctx context.Context) error
}
