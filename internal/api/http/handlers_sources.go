package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"magnetcast/internal/domain"
	"magnetcast/internal/services/sources"
)

type sourcesResponse struct {
	Success bool                     `json:"success"`
	Data    []domain.SourceCandidate `json:"data"`
	Count   int                      `json:"count"`
}

func newSourcesResponse(candidates []domain.SourceCandidate) sourcesResponse {
	if candidates == nil {
		candidates = []domain.SourceCandidate{}
	}
	return sourcesResponse{Success: true, Data: candidates, Count: len(candidates)}
}

// handleSources proxies a media lookup to the source aggregator. An
// aggregator failure degrades to an empty list so the client UI can
// fall back to manual magnet entry.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.sources == nil {
		writeJSON(w, http.StatusOK, newSourcesResponse(nil))
		return
	}

	var req sources.SearchRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	results, err := s.sources.Search(r.Context(), req)
	if err != nil {
		s.logger.Warn("sources search failed",
			slog.String("mediaType", req.MediaType),
			slog.String("mediaId", req.MediaID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, newSourcesResponse(nil))
		return
	}

	writeJSON(w, http.StatusOK, newSourcesResponse(results))
}
