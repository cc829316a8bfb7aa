package models

import "time"

// CaptureArtifact is the rendered screenshot produced by a capture attempt.
// It is owned by the pipeline run that created it until handed to the
// extraction stage; the storage layer decides retention afterwards.
type CaptureArtifact struct {
	// PNG is the raw screenshot bytes.
	PNG []byte `json:"-"`

	// Engine is the name of the engine that produced the shot.
	Engine string `json:"engine"`

	// CapturedAt is when the screenshot was taken.
	CapturedAt time.Time `json:"captured_at"`

	// FullPage reports whether the shot covers the whole page or the viewport.
	FullPage bool `json:"full_page"`

	// FinalURL is the URL after redirects, best-effort.
	FinalURL string `json:"final_url,omitempty"`

	// Title is the document title, best-effort.
	Title string `json:"title,omitempty"`

	// Path is set once the artifact has been persisted to disk.
	Path string `json:"path,omitempty"`
}
