// Package ledger keeps a SQLite record of every stage outcome per document.
// Discovery never consults it; it only reports what past runs did.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	stage       TEXT NOT NULL,
	document    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	artifact    TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS outcomes_stage_document ON outcomes (stage, document);
`

// Entry is one recorded outcome.
type Entry struct {
	ID         int64  `db:"id"`
	Stage      string `db:"stage"`
	Document   string `db:"document"`
	Outcome    string `db:"outcome"`
	Detail     string `db:"detail"`
	Artifact   string `db:"artifact"`
	RecordedAt string `db:"recorded_at"`
}

func (e Entry) Time() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, e.RecordedAt)
	return t
}

type Ledger struct {
	db    *sqlx.DB
	clock func() time.Time
}

func Open(path string) (*Ledger, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Ledger{db: db, clock: time.Now}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends ev. It satisfies pathway.Recorder.
func (l *Ledger) Record(ctx context.Context, ev pathway.Event) error {
	e := Entry{
		Stage:      ev.Stage,
		Document:   ev.Document,
		Outcome:    string(ev.Outcome),
		Detail:     ev.Detail,
		Artifact:   ev.Artifact,
		RecordedAt: l.clock().UTC().Format(time.RFC3339Nano),
	}
	_, err := l.db.NamedExecContext(ctx, `INSERT INTO outcomes (stage, document, outcome, detail, artifact, recorded_at)
		VALUES (:stage, :document, :outcome, :detail, :artifact, :recorded_at)`, e)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Latest returns the most recent entry for every (stage, document) pair,
// ordered by document then pipeline stage.
func (l *Ledger) Latest(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := l.db.SelectContext(ctx, &out, `
		SELECT o.id, o.stage, o.document, o.outcome, o.detail, o.artifact, o.recorded_at
		FROM outcomes o
		JOIN (SELECT MAX(id) AS id FROM outcomes GROUP BY stage, document) m ON o.id = m.id
		ORDER BY o.document,
			CASE o.stage
				WHEN 'rasterize' THEN 1
				WHEN 'extract' THEN 2
				WHEN 'complete' THEN 3
				WHEN 'match' THEN 4
				ELSE 5
			END`)
	if err != nil {
		return nil, fmt.Errorf("query latest outcomes: %w", err)
	}
	return out, nil
}

// History returns every entry for one document in insertion order.
func (l *Ledger) History(ctx context.Context, document string) ([]Entry, error) {
	var out []Entry
	err := l.db.SelectContext(ctx, &out, `
		SELECT id, stage, document, outcome, detail, artifact, recorded_at
		FROM outcomes WHERE document = ? ORDER BY id`, document)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return out, nil
}
