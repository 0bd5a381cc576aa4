package anacrolix

import (
	"github.com/anacrolix/torrent"
)

// Progressive playback wants the head of the file before anything else:
// the first band covers container headers and the initial buffer, the
// second gives the player room to start, the rest fills in order of the
// client's normal piece selection.
const (
	urgentBandBytes    = 5 << 20
	readaheadBandBytes = 30 << 20
)

type pieceSpan struct {
	start int // inclusive
	end   int // exclusive
}

func (s pieceSpan) empty() bool { return s.end <= s.start }

// filePieceBands splits the pieces covering a file into three priority
// bands by byte offset within the file. Spans are piece indices within
// the whole torrent and may overlap by one piece at band boundaries;
// apply them in descending priority order so the boundary piece keeps
// the higher priority.
func filePieceBands(fileOffset, fileLength, pieceLength int64) (urgent, readahead, normal pieceSpan) {
	if fileLength <= 0 || pieceLength <= 0 {
		return
	}

	span := func(from, to int64) pieceSpan {
		if to > fileLength {
			to = fileLength
		}
		if from >= to {
			return pieceSpan{}
		}
		start := (fileOffset + from) / pieceLength
		end := (fileOffset + to + pieceLength - 1) / pieceLength
		return pieceSpan{start: int(start), end: int(end)}
	}

	urgent = span(0, urgentBandBytes)
	readahead = span(urgentBandBytes, readaheadBandBytes)
	normal = span(readaheadBandBytes, fileLength)
	return
}

// applyPriorityBands focuses the client on the playback file: its head
// pieces are requested immediately, the rest of the file normally, and
// every other file in the torrent is skipped.
func (e *Engine) applyPriorityBands(t *torrent.Torrent, file *torrent.File, all []*torrent.File) {
	for _, f := range all {
		if f != file {
			f.SetPriority(torrent.PiecePriorityNone)
		}
	}

	info := t.Info()
	if info == nil {
		return
	}
	urgent, readahead, normal := filePieceBands(file.Offset(), file.Length(), info.PieceLength)

	numPieces := t.NumPieces()
	apply := func(s pieceSpan, prio torrent.PiecePriority) {
		if s.empty() {
			return
		}
		start, end := s.start, s.end
		if start < 0 {
			start = 0
		}
		if end > numPieces {
			end = numPieces
		}
		for i := start; i < end; i++ {
			t.Piece(i).SetPriority(prio)
		}
	}

	// Lowest first so boundary pieces end up with the higher priority.
	apply(normal, torrent.PiecePriorityNormal)
	apply(readahead, torrent.PiecePriorityReadahead)
	apply(urgent, torrent.PiecePriorityNow)
}
