package apihttp

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"magnetcast/internal/domain"
	"magnetcast/internal/metrics"
)

// sessionView is the wire shape of a download session. Byte figures are
// duplicated in humanized form for UI convenience.
type sessionView struct {
	InfoHash        domain.InfoHash      `json:"infoHash"`
	Name            string               `json:"name,omitempty"`
	State           domain.SessionState  `json:"state"`
	Progress        int                  `json:"progress"`
	Peers           int                  `json:"peers"`
	DownloadSpeed   int64                `json:"downloadSpeed"`
	DownloadSpeedH  string               `json:"downloadSpeedHuman"`
	TotalSize       int64                `json:"totalSize"`
	TotalSizeH      string               `json:"totalSizeHuman"`
	DownloadedBytes int64                `json:"downloaded"`
	DownloadedH     string               `json:"downloadedHuman"`
	File            *domain.SelectedFile `json:"file,omitempty"`
	PlaybackReady   bool                 `json:"playbackReady"`
	Error           string               `json:"error,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// roundPercent collapses a fractional completion percent into the whole
// number exposed on the wire.
func roundPercent(p float64) int {
	return int(math.Round(p))
}

func newSessionView(session domain.DownloadSession) sessionView {
	return sessionView{
		InfoHash:        session.InfoHash,
		Name:            session.Name,
		State:           session.State,
		Progress:        roundPercent(session.Progress),
		Peers:           session.Peers,
		DownloadSpeed:   session.DownloadSpeed,
		DownloadSpeedH:  humanize.Bytes(uint64(session.DownloadSpeed)) + "/s",
		TotalSize:       session.TotalSize,
		TotalSizeH:      humanize.Bytes(uint64(session.TotalSize)),
		DownloadedBytes: session.DownloadedBytes,
		DownloadedH:     humanize.Bytes(uint64(session.DownloadedBytes)),
		File:            session.File,
		PlaybackReady:   session.PlaybackReady,
		Error:           session.Error,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
}

type downloadRequest struct {
	MagnetURI string `json:"magnetUri"`
}

type sessionResponse struct {
	Success bool        `json:"success"`
	Data    sessionView `json:"data"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body downloadRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	raw := strings.TrimSpace(body.MagnetURI)

	// A bare 40-hex content identifier is accepted directly; everything
	// else must be a full magnet URI.
	var (
		hash domain.InfoHash
		name string
	)
	if bare, bareErr := domain.ParseInfoHash(raw); bareErr == nil {
		hash = bare
		raw = bare.Magnet()
	} else {
		var err error
		hash, name, err = domain.ParseMagnet(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid magnet link")
			return
		}
	}

	session, created, err := s.registry.GetOrCreate(r.Context(), hash, raw, name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		metrics.SessionsCreatedTotal.Inc()
	}
	writeJSON(w, status, sessionResponse{Success: true, Data: newSessionView(session)})
}

func (s *Server) handleDownloadByHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", http.MethodDelete)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	hash, err := domain.ParseInfoHash(strings.TrimPrefix(r.URL.Path, "/api/torrent/download/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid info hash")
		return
	}

	// Teardown is idempotent: deleting an unknown or already-removed
	// hash succeeds without doing anything.
	switch err := s.registry.Remove(r.Context(), hash); {
	case err == nil:
		metrics.SessionsRemovedTotal.Inc()
	case errors.Is(err, domain.ErrNotFound):
	default:
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, removeResponse{Success: true, Message: "download removed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	hash, err := domain.ParseInfoHash(strings.TrimPrefix(r.URL.Path, "/api/torrent/status/"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid info hash")
		return
	}

	session, err := s.registry.Get(hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Success: true, Data: newSessionView(session)})
}

type removeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type sessionListResponse struct {
	Success bool          `json:"success"`
	Data    []sessionView `json:"data"`
	Count   int           `json:"count"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessions := s.registry.List()
	items := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, newSessionView(session))
	}

	writeJSON(w, http.StatusOK, sessionListResponse{Success: true, Data: items, Count: len(items)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"message":         "magnetcast is running",
		"timestamp":       time.Now().UTC(),
		"activeDownloads": len(s.registry.List()),
	})
}
