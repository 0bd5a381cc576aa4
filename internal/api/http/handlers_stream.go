package apihttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"magnetcast/internal/domain"
	"magnetcast/internal/metrics"
)

// The stream endpoint serves only bytes that are already on disk. A
// request without a Range header is treated as a player probe and gets
// at most the first 64 KiB; ranged requests get at most 1 MiB per
// response, clamped to the materialized prefix of the file.
const (
	probeWindowBytes    = 64 << 10
	maxStreamChunkBytes = 1 << 20
)

type streamPlanKind int

const (
	planProbe streamPlanKind = iota
	planNotReady
	planRangeAhead
	planBadRange
	planPartial
)

type streamPlan struct {
	kind   streamPlanKind
	start  int64
	end    int64 // inclusive
	length int64
}

// planStream decides how to answer a stream request given the Range
// header, the number of bytes materialized on disk and the declared
// final size of the file. It never plans a read past the materialized
// prefix.
func planStream(rangeHeader string, materialized, declared int64) streamPlan {
	if materialized < 0 {
		materialized = 0
	}

	if rangeHeader == "" {
		length := materialized
		if length > probeWindowBytes {
			length = probeWindowBytes
		}
		return streamPlan{kind: planProbe, start: 0, end: length - 1, length: length}
	}

	if materialized == 0 {
		return streamPlan{kind: planNotReady}
	}

	start, end, err := parseByteRange(rangeHeader, declared)
	if err != nil {
		if errors.Is(err, errRangeNotSatisfiable) {
			return streamPlan{kind: planRangeAhead}
		}
		return streamPlan{kind: planBadRange}
	}

	if start >= materialized {
		return streamPlan{kind: planRangeAhead}
	}
	if end > materialized-1 {
		end = materialized - 1
	}
	if limit := start + maxStreamChunkBytes - 1; end > limit {
		end = limit
	}
	return streamPlan{kind: planPartial, start: start, end: end, length: end - start + 1}
}

// streamProgressResponse is the JSON body for requests that cannot be
// served yet: it tells the player how far the download has advanced.
type streamProgressResponse struct {
	Error         string              `json:"error"`
	Message       string              `json:"message"`
	State         domain.SessionState `json:"state"`
	Progress      int                 `json:"progress"`
	Downloaded    int64               `json:"downloaded"`
	PlaybackReady bool                `json:"playbackReady"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	hash, err := domain.ParseInfoHash(strings.TrimPrefix(r.URL.Path, "/api/torrent/stream/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid info hash")
		return
	}

	session, err := s.registry.Get(hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if session.File == nil {
		metrics.StreamNotReadyTotal.Inc()
		s.writeStreamProgress(w, http.StatusNotFound, "not_ready", "no playable file yet", session)
		return
	}

	materialized := materializedSize(session.File.DiskPath)
	plan := planStream(r.Header.Get("Range"), materialized, session.File.Length)

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	switch plan.kind {
	case planNotReady:
		metrics.StreamNotReadyTotal.Inc()
		s.writeStreamProgress(w, http.StatusNotFound, "not_ready", "no data materialized yet", session)
		return
	case planRangeAhead:
		metrics.StreamNotReadyTotal.Inc()
		s.writeStreamProgress(w, http.StatusRequestedRangeNotSatisfiable, "range_not_ready", "requested range is ahead of the download", session)
		return
	case planBadRange:
		s.writeStreamProgress(w, http.StatusRequestedRangeNotSatisfiable, "invalid_range", "malformed range header", session)
		return
	}

	w.Header().Set("Content-Type", fallbackContentType(filepath.Ext(session.File.Path)))

	status := http.StatusOK
	switch {
	case plan.kind == planPartial:
		status = http.StatusPartialContent
		w.Header().Set("Content-Length", strconv.FormatInt(plan.length, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", plan.start, plan.end, session.File.Length))
	case plan.length == 0:
		w.Header().Set("Content-Length", "0")
	default:
		// A probe declares the final file size so the player learns the
		// full length up front; only the materialized head is streamed
		// before the connection closes.
		w.Header().Set("Content-Length", strconv.FormatInt(session.File.Length, 10))
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead || plan.length == 0 {
		return
	}

	file, err := os.Open(session.File.DiskPath)
	if err != nil {
		// Headers are already out; nothing sane left to send.
		s.logger.Error("stream open failed",
			slog.String("infoHash", string(hash)),
			slog.String("path", session.File.DiskPath),
			slog.String("error", err.Error()),
		)
		return
	}
	defer file.Close()

	n, err := io.Copy(w, io.NewSectionReader(file, plan.start, plan.length))
	metrics.StreamBytesServedTotal.Add(float64(n))
	if err != nil {
		// Players abort ranged requests constantly; log at debug only.
		s.logger.Debug("stream copy interrupted",
			slog.String("infoHash", string(hash)),
			slog.Int64("sent", n),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) writeStreamProgress(w http.ResponseWriter, status int, code, message string, session domain.DownloadSession) {
	writeJSON(w, status, streamProgressResponse{
		Error:         code,
		Message:       message,
		State:         session.State,
		Progress:      roundPercent(session.Progress),
		Downloaded:    session.DownloadedBytes,
		PlaybackReady: session.PlaybackReady,
	})
}

// materializedSize returns the current on-disk size of the file, which
// is the ground truth for how many leading bytes can be served. Missing
// file means the engine has not flushed anything yet.
func materializedSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
