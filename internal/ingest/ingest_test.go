package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glyphkeeper/glyphkeeper/internal/db"
	"github.com/glyphkeeper/glyphkeeper/internal/knowledge"
)

func newTestIngestor(t *testing.T) (*Ingestor, *knowledge.Engine, string) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	engine := knowledge.NewEngine(conn, knowledge.DomainWorld, nil)
	require.NoError(t, engine.Migrate(ctx))

	root, err := ResolveRoot(t.TempDir())
	require.NoError(t, err)
	return NewIngestor(engine, root, nil), engine, root
}

func TestIngestFileSplitsParagraphs(t *testing.T) {
	ing, engine, root := newTestIngestor(t)
	content := "# Greyharbor\n\nThe town of Greyharbor clings to the cliffs.\n\nIts lighthouse predates every record.\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "lore.md"), []byte(content), 0o644))

	n, err := ing.IngestFile(context.Background(), "lore.md", knowledge.SectionLore)
	require.NoError(t, err)
	require.Equal(t, 2, n, "heading-only chunks are skipped")

	out, err := engine.Query(context.Background(), "lighthouse record", 10)
	require.NoError(t, err)
	require.Contains(t, out, "predates every record")
}

func TestIngestDirRoutesSecrets(t *testing.T) {
	ing, engine, root := newTestIngestor(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pack", "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pack", "town.md"),
		[]byte("The harbor bell rings at dusk."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pack", "secrets", "keeper.md"),
		[]byte("The bell ringer drowned years ago."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pack", "notes.json"),
		[]byte(`{"ignored":true}`), 0o644))

	n, err := ing.IngestDir(context.Background(), "pack", knowledge.SectionLore)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	out, err := engine.Query(context.Background(), "bell ringer dusk", 10)
	require.NoError(t, err)
	require.Contains(t, out, "## [Lore]")
	require.Contains(t, out, "## [Secret]")
	require.Contains(t, out, "drowned years ago")
}

func TestValidatePathRejectsEscapes(t *testing.T) {
	_, _, root := newTestIngestor(t)

	_, err := validatePath(root, "../outside.md")
	require.Error(t, err)

	_, err = validatePath(root, "/etc/passwd")
	require.Error(t, err)

	_, err = validatePath(root, "sub/../ok.md")
	require.NoError(t, err)
}
