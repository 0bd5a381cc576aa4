package domain

import "time"

type SessionState string

const (
	StatePending      SessionState = "pending"
	StateMetadataWait SessionState = "metadata_wait"
	StateDownloading  SessionState = "downloading"
	StateCompleted    SessionState = "completed"
	StateErrored      SessionState = "errored"
)

// SelectedFile describes the single file within a torrent chosen for
// playback. DiskPath points at its partially materialized on-disk copy.
type SelectedFile struct {
	Index    int    `json:"index"`
	Path     string `json:"path"`
	DiskPath string `json:"-"`
	Length   int64  `json:"length"`
}

// DownloadSession is the registry's view of one active download, keyed by
// info hash. All byte and progress figures are high-water marks: they never
// move backwards even if the underlying engine re-verifies pieces.
type DownloadSession struct {
	InfoHash        InfoHash      `json:"infoHash"`
	Magnet          string        `json:"-"`
	Name            string        `json:"name,omitempty"`
	State           SessionState  `json:"state"`
	Progress        float64       `json:"progress"`
	Peers           int           `json:"peers"`
	DownloadSpeed   int64         `json:"downloadSpeed"`
	TotalSize       int64         `json:"totalSize"`
	DownloadedBytes int64         `json:"downloaded"`
	File            *SelectedFile `json:"file,omitempty"`
	PlaybackReady   bool          `json:"playbackReady"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ProgressEvent is emitted by the download engine and applied to the
// registry by its updater goroutine. Zero-valued numeric fields mean
// "no new information", not "reset to zero".
type ProgressEvent struct {
	InfoHash        InfoHash
	State           SessionState
	Name            string
	Progress        float64
	Peers           int
	DownloadSpeed   int64
	TotalSize       int64
	DownloadedBytes int64
	File            *SelectedFile
	Err             error
}
