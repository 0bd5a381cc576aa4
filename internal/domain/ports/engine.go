package ports

import (
	"context"

	"magnetcast/internal/domain"
)

// Engine drives torrent downloads. Implementations report progress by
// sending domain.ProgressEvent values on the channel supplied at
// construction; the methods here only start and stop work.
type Engine interface {
	// Start adds the magnet link and begins downloading. It returns once
	// the torrent has been accepted by the underlying client; metadata
	// resolution and the download itself proceed asynchronously.
	Start(ctx context.Context, id domain.InfoHash, magnet string) error

	// Stop halts the download and releases the torrent. Data already
	// written to disk is kept.
	Stop(id domain.InfoHash) error

	Close() error
}
