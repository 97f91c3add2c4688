// Package knowledge stores long-lived facts and serves the retrieval bundle
// consumed by the prompt layer. Facts live in three sections: lore (world
// truths shared with the player), episodic (consolidated session memory),
// and secret (keeper-only information).
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Section classifies a stored note.
type Section string

const (
	SectionLore     Section = "lore"
	SectionEpisodic Section = "episodic"
	SectionSecret   Section = "secret"
)

// Mode is the retrieval shape hint derived from the question.
type Mode string

const (
	// ModeGlobal favors broad world truths.
	ModeGlobal Mode = "global"
	// ModeLocal favors recent concrete events.
	ModeLocal Mode = "local"
	// ModeHybrid balances both.
	ModeHybrid Mode = "hybrid"
)

// Domain names partition the store so world facts and rulebook text never
// bleed into each other's retrievals.
const (
	DomainWorld = "world"
	DomainRules = "rules"
)

// Note is one stored fact.
type Note struct {
	Section Section
	Content string
}

// SchemaDDL defines the note store and its full-text index. The FTS table
// shadows knowledge_notes via triggers so writes stay single-statement.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS knowledge_notes (
    id INTEGER PRIMARY KEY,
    domain TEXT NOT NULL,
    section TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_domain ON knowledge_notes (domain, section);

CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
    content,
    content='knowledge_notes',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS knowledge_ai AFTER INSERT ON knowledge_notes BEGIN
    INSERT INTO knowledge_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS knowledge_ad AFTER DELETE ON knowledge_notes BEGIN
    INSERT INTO knowledge_fts(knowledge_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;
CREATE TRIGGER IF NOT EXISTS knowledge_au AFTER UPDATE ON knowledge_notes BEGIN
    INSERT INTO knowledge_fts(knowledge_fts, rowid, content) VALUES ('delete', old.id, old.content);
    INSERT INTO knowledge_fts(rowid, content) VALUES (new.id, new.content);
END;
`

// Engine is a full-text retrieval engine over one domain of the note store.
type Engine struct {
	db     *sql.DB
	domain string
	log    *zap.Logger
}

// NewEngine returns an engine scoped to the given domain.
func NewEngine(db *sql.DB, domain string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, domain: domain, log: log}
}

// Migrate creates the note store tables. Safe to call from every engine
// sharing the database.
func (e *Engine) Migrate(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("migrate knowledge schema: %w", err)
	}
	return nil
}

// InsertNote stores one classified fact.
func (e *Engine) InsertNote(ctx context.Context, note Note) error {
	if strings.TrimSpace(note.Content) == "" {
		return fmt.Errorf("insert note: empty content")
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO knowledge_notes (domain, section, content, created_at) VALUES (?, ?, ?, ?)`,
		e.domain, string(note.Section), note.Content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// Insert stores text as episodic memory. This is the deposit path the
// memory consolidator uses.
func (e *Engine) Insert(ctx context.Context, text string) error {
	return e.InsertNote(ctx, Note{Section: SectionEpisodic, Content: text})
}

// Query retrieves up to topK matching notes and renders them as a sectioned
// markdown bundle with [Lore], [Memory], and [Secret] headings. Sections
// with no hits are omitted.
func (e *Engine) Query(ctx context.Context, query string, topK int) (string, error) {
	if topK <= 0 {
		topK = 10
	}
	match := ftsQuery(query)
	if match == "" {
		return "", nil
	}
	mode := DetectMode(query)
	e.log.Debug("knowledge query",
		zap.String("domain", e.domain),
		zap.String("mode", string(mode)),
		zap.Int("top_k", topK))

	rows, err := e.db.QueryContext(ctx,
		`SELECT n.section, n.content
		 FROM knowledge_fts f
		 JOIN knowledge_notes n ON n.id = f.rowid
		 WHERE n.domain = ? AND knowledge_fts MATCH ?
		 ORDER BY f.rank
		 LIMIT ?`, e.domain, match, topK)
	if err != nil {
		return "", fmt.Errorf("knowledge query: %w", err)
	}
	defer rows.Close()

	bySection := map[Section][]string{}
	for rows.Next() {
		var section, content string
		if err := rows.Scan(&section, &content); err != nil {
			return "", fmt.Errorf("scan knowledge hit: %w", err)
		}
		s := Section(section)
		bySection[s] = append(bySection[s], content)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("knowledge query: %w", err)
	}
	return renderBundle(bySection), nil
}

func renderBundle(bySection map[Section][]string) string {
	var b strings.Builder
	emit := func(heading string, section Section) {
		hits := bySection[section]
		if len(hits) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + heading + "\n")
		for _, h := range hits {
			b.WriteString("- " + h + "\n")
		}
	}
	emit("[Lore]", SectionLore)
	emit("[Memory]", SectionEpisodic)
	emit("[Secret]", SectionSecret)
	return b.String()
}

// DetectMode infers the retrieval shape from the question: definitional
// questions lean global, situational ones lean local, everything else is
// hybrid.
func DetectMode(query string) Mode {
	q := strings.ToLower(query)
	for _, kw := range []string{"what is", "who is", "describe", "history of", "tell me about"} {
		if strings.Contains(q, kw) {
			return ModeGlobal
		}
	}
	for _, kw := range []string{"where", "last", "just now", "recently", "current"} {
		if strings.Contains(q, kw) {
			return ModeLocal
		}
	}
	return ModeHybrid
}

// ftsQuery converts free text into an FTS5 match expression: alphanumeric
// terms, each quoted, joined by OR. Returns "" when no usable terms remain.
func ftsQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !(r == '\'' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r > 127)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'-")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, "")+`"`)
	}
	return strings.Join(terms, " OR ")
}
