// Package ingest loads scenario content packs (lore, secrets, rulebook
// text) from disk into the knowledge store. Paths are validated against the
// content root so a pack cannot reference files outside it.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/glyphkeeper/glyphkeeper/internal/knowledge"
)

// Ingestor reads content files under a root and deposits them as notes.
type Ingestor struct {
	engine *knowledge.Engine
	root   string
	log    *zap.Logger
}

// NewIngestor returns an ingestor writing into the given engine. root must
// come from ResolveRoot.
func NewIngestor(engine *knowledge.Engine, root string, log *zap.Logger) *Ingestor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingestor{engine: engine, root: root, log: log}
}

// IngestFile splits one file into paragraph notes under the given section.
// Returns the number of notes stored.
func (i *Ingestor) IngestFile(ctx context.Context, relPath string, section knowledge.Section) (int, error) {
	path, err := validatePath(i.root, relPath)
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", relPath, err)
	}

	count := 0
	for _, para := range splitParagraphs(string(raw)) {
		if err := i.engine.InsertNote(ctx, knowledge.Note{Section: section, Content: para}); err != nil {
			return count, fmt.Errorf("ingest %s: %w", relPath, err)
		}
		count++
	}
	i.log.Info("file ingested",
		zap.String("path", relPath),
		zap.String("section", string(section)),
		zap.Int("notes", count))
	return count, nil
}

// IngestDir ingests every .md and .txt file under relPath, walking
// subdirectories. Files under a directory named "secrets" go into the
// secret section regardless of the requested one.
func (i *Ingestor) IngestDir(ctx context.Context, relPath string, section knowledge.Section) (int, error) {
	dir, err := validatePath(i.root, relPath)
	if err != nil {
		return 0, err
	}

	total := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		rel, err := filepath.Rel(i.root, path)
		if err != nil {
			return err
		}
		fileSection := section
		if underSecretsDir(rel) {
			fileSection = knowledge.SectionSecret
		}
		n, err := i.IngestFile(ctx, rel, fileSection)
		total += n
		return err
	})
	if err != nil {
		return total, fmt.Errorf("walk %s: %w", relPath, err)
	}
	return total, nil
}

func underSecretsDir(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "secrets" {
			return true
		}
	}
	return false
}

// splitParagraphs breaks text on blank lines, dropping headings-only and
// empty chunks.
func splitParagraphs(text string) []string {
	var out []string
	for _, chunk := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para := strings.TrimSpace(chunk)
		if para == "" {
			continue
		}
		if onlyHeadings(para) {
			continue
		}
		out = append(out, para)
	}
	return out
}

func onlyHeadings(para string) bool {
	for _, line := range strings.Split(para, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return false
		}
	}
	return true
}
