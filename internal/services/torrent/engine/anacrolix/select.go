package anacrolix

import (
	"github.com/anacrolix/torrent"

	"magnetcast/internal/domain"
)

type fileCandidate struct {
	path   string
	length int64
}

func fileCandidates(files []*torrent.File) []fileCandidate {
	out := make([]fileCandidate, 0, len(files))
	for _, f := range files {
		out = append(out, fileCandidate{path: f.Path(), length: f.Length()})
	}
	return out
}

// pickPlaybackFile chooses the file to stream: the largest file with a
// video extension, or the largest file overall when the torrent has no
// recognizable video. Returns -1 for an empty list.
func pickPlaybackFile(files []fileCandidate) int {
	bestVideo, bestAny := -1, -1
	for i, f := range files {
		if bestAny < 0 || f.length > files[bestAny].length {
			bestAny = i
		}
		if domain.IsVideoPath(f.path) {
			if bestVideo < 0 || f.length > files[bestVideo].length {
				bestVideo = i
			}
		}
	}
	if bestVideo >= 0 {
		return bestVideo
	}
	return bestAny
}
