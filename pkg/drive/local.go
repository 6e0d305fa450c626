package drive

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-dashboard/internal/model"
)

// Local implements Client over a directory tree. Folders are directories,
// ids are slash-separated paths relative to the root, and a file's
// modification time stands in for its creation time.
type Local struct {
	root string
}

// NewLocal returns a Client rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "drive: create local root %s", dir)
	}
	return &Local{root: dir}, nil
}

func (l *Local) resolve(id string) (string, error) {
	id = strings.TrimSpace(id)
	for _, seg := range strings.Split(id, "/") {
		if seg == ".." {
			return "", eris.Errorf("drive: invalid id %q", id)
		}
	}
	clean := path.Clean("/" + id)
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (l *Local) List(ctx context.Context, folderID string) ([]model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "drive: list")
	}
	dir, err := l.resolve(folderID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "drive: list folder %s", folderID)
	}

	out := make([]model.Artifact, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created := info.ModTime().UTC()
		out = append(out, model.Artifact{
			Name:       e.Name(),
			ID:         path.Join(strings.Trim(folderID, "/"), e.Name()),
			MimeType:   mimeFor(e),
			CreatedAt:  created,
			CreatedRaw: created.Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

func (l *Local) Download(ctx context.Context, fileID, destDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "drive: download")
	}
	src, err := l.resolve(fileID)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filepath.Base(src))
	return dest, copyFile(src, dest)
}

func (l *Local) Upload(ctx context.Context, localPath, folderID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "drive: upload")
	}
	id := path.Join(strings.Trim(folderID, "/"), name)
	dest, err := l.resolve(id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err == nil {
		return "", eris.Errorf("drive: %s already exists in %s", name, folderID)
	}
	return id, copyFile(localPath, dest)
}

func (l *Local) Overwrite(ctx context.Context, fileID, localPath string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "drive: overwrite")
	}
	dest, err := l.resolve(fileID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dest); err != nil {
		return eris.Wrapf(err, "drive: overwrite %s", fileID)
	}
	return copyFile(localPath, dest)
}

// Export copies the stored sheet as-is; local sheets are kept already
// exported in the requested format.
func (l *Local) Export(ctx context.Context, fileID, _ string, destPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "drive: export")
	}
	src, err := l.resolve(fileID)
	if err != nil {
		return "", err
	}
	return destPath, copyFile(src, destPath)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "drive: open %s", src)
	}
	defer in.Close() //nolint:errcheck
	return writeFile(dest, in)
}

func mimeFor(e os.DirEntry) string {
	if e.IsDir() {
		return model.MimeFolder
	}
	switch strings.ToLower(filepath.Ext(e.Name())) {
	case ".csv":
		return model.MimeCSV
	case ".xlsx":
		return MimeXLSX
	default:
		return "application/octet-stream"
	}
}
