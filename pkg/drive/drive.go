// Package drive is the remote store client: it lists, downloads, uploads
// and overwrites files in Google Drive folders and exports Google Sheets.
package drive

import (
	"context"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Export formats for Google Sheets.
const (
	MimeCSV  = "text/csv"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Client is the remote store contract consumed by the pipeline. Every
// operation reports failure as a non-nil error, distinct from an empty
// result.
type Client interface {
	// List returns the non-trashed files and folders directly inside folderID.
	List(ctx context.Context, folderID string) ([]model.Artifact, error)

	// Download writes the file to destDir under its remote name and returns
	// the local path.
	Download(ctx context.Context, fileID, destDir string) (string, error)

	// Upload creates a new file named name in folderID and returns its id.
	Upload(ctx context.Context, localPath, folderID, name string) (string, error)

	// Overwrite replaces the content of an existing file.
	Overwrite(ctx context.Context, fileID, localPath string) error

	// Export converts a Google Sheet to mimeType and writes it to destPath.
	Export(ctx context.Context, fileID, mimeType, destPath string) (string, error)
}

// FindByName returns the first artifact named name.
func FindByName(artifacts []model.Artifact, name string) (model.Artifact, bool) {
	for _, a := range artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return model.Artifact{}, false
}
