package drive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-dashboard/internal/model"
)

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l, err := NewLocal(root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "daily", "2025"), 0o755))

	src := filepath.Join(t.TempDir(), "snap.csv")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o644))

	id, err := l.Upload(ctx, src, "daily", "Evaluaciones_2025-06-01.csv")
	require.NoError(t, err)
	assert.Equal(t, "daily/Evaluaciones_2025-06-01.csv", id)

	_, err = l.Upload(ctx, src, "daily", "Evaluaciones_2025-06-01.csv")
	require.Error(t, err)

	items, err := l.List(ctx, "daily")
	require.NoError(t, err)
	require.Len(t, items, 2)
	byName := map[string]model.Artifact{}
	for _, a := range items {
		byName[a.Name] = a
	}
	assert.Equal(t, model.MimeFolder, byName["2025"].MimeType)
	snap := byName["Evaluaciones_2025-06-01.csv"]
	assert.Equal(t, model.MimeCSV, snap.MimeType)
	assert.False(t, snap.CreatedAt.IsZero())

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	require.NoError(t, l.Overwrite(ctx, id, src))

	got, err := l.Download(ctx, id, t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestLocal_OverwriteMissing(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.Error(t, l.Overwrite(context.Background(), "nope.csv", src))
}

func TestLocal_RejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = l.Download(context.Background(), "../../etc/passwd", t.TempDir())
	require.Error(t, err)
}

func TestFindByName(t *testing.T) {
	items := []model.Artifact{{Name: "a", ID: "1"}, {Name: "b", ID: "2"}, {Name: "b", ID: "3"}}

	got, ok := FindByName(items, "b")
	require.True(t, ok)
	assert.Equal(t, "2", got.ID)

	_, ok = FindByName(items, "c")
	assert.False(t, ok)
}
