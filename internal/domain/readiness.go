package domain

// Playback is considered safe to start once either threshold is met.
// Two percent of a typical movie rip covers the moov atom and a few
// seconds of leading data; the absolute floor handles very large files
// where two percent would take too long.
const (
	PlaybackReadyProgress = 2.0
	PlaybackReadyBytes    = 5 << 20
)

// PlaybackReadyNow reports whether a session with the given progress
// (percent, 0-100) and downloaded byte count has buffered enough to
// start playback. The registry latches the result: once true it stays
// true for the life of the session.
func PlaybackReadyNow(progress float64, downloadedBytes int64) bool {
	return progress >= PlaybackReadyProgress || downloadedBytes >= PlaybackReadyBytes
}
