package model

import "time"

// MimeCSV is the mime type of stored daily snapshots.
const MimeCSV = "text/csv"

// MimeFolder is the mime type Drive assigns to folders.
const MimeFolder = "application/vnd.google-apps.folder"

// Artifact is metadata about a file in the remote store.
type Artifact struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`

	// CreatedRaw is the creation timestamp exactly as the store reported it.
	CreatedRaw string `json:"created_raw,omitempty"`
}
