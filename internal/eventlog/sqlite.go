// Package eventlog implements the event-sourced replayer the classification
// overlay reads from: an append-only log of "this oid was observed with
// this activity status" events, backed by an embedded SQLite database, in
// the style of the teacher's internal/storage.SQLiteStore.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/branchlessvcs/smartlog/internal/dagerrors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteReplayer stores commit activity events as rows in an embedded
// SQLite database. A cursor is simply "every row with id <= cursor";
// GetCursorCommitActivityStatus reports the latest status at or before the
// cursor for a given oid, defaulting to Active if that oid was never
// observed.
type SQLiteReplayer struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// Open opens (creating if necessary) the event log at path.
func Open(path string, logger *logrus.Logger) (*SQLiteReplayer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dagerrors.WrapIndexIO(err, "open", "creating event log directory "+dir)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, dagerrors.WrapIndexIO(err, "open", "connecting to event log at "+path)
	}
	db.Exec("PRAGMA journal_mode = WAL")

	r := &SQLiteReplayer{db: db, logger: logger}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteReplayer) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS commit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		oid TEXT NOT NULL,
		status INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_commit_events_oid ON commit_events(oid);

	CREATE TABLE IF NOT EXISTS ref_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		head_oid TEXT,
		main_branch_oid TEXT NOT NULL,
		branch_oid TEXT NOT NULL,
		branch_name TEXT NOT NULL
	);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return dagerrors.WrapIndexIO(err, "open", "initializing event log schema")
	}
	return nil
}

// Close closes the underlying database handle.
func (r *SQLiteReplayer) Close() error {
	return r.db.Close()
}

// Append records oid's activity status as of "now" and returns the cursor
// that observation is visible at.
func (r *SQLiteReplayer) Append(oid dag.NonZeroOid, status dag.CommitActivityStatus) (dag.EventCursor, error) {
	res, err := r.db.Exec(`INSERT INTO commit_events (oid, status) VALUES (?, ?)`, oid.String(), int(status))
	if err != nil {
		return 0, dagerrors.WrapBackend(err, "append", "recording commit event for "+oid.String())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, dagerrors.WrapBackend(err, "append", "reading new event cursor")
	}
	return dag.EventCursor(id), nil
}

// AppendRefSnapshot records a references snapshot and returns the cursor
// GetReferencesSnapshot should be called with to retrieve it again.
func (r *SQLiteReplayer) AppendRefSnapshot(snapshot *dag.ReferencesSnapshot) (dag.EventCursor, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, dagerrors.WrapBackend(err, "append", "starting ref snapshot transaction")
	}
	defer tx.Rollback()

	var headOid interface{}
	if snapshot.HeadOid != nil {
		headOid = snapshot.HeadOid.String()
	}

	var cursor int64
	for branchOid, names := range snapshot.BranchOidToNames {
		for _, name := range names {
			res, err := tx.Exec(
				`INSERT INTO ref_snapshots (head_oid, main_branch_oid, branch_oid, branch_name) VALUES (?, ?, ?, ?)`,
				headOid, snapshot.MainBranchOid.String(), branchOid.String(), name,
			)
			if err != nil {
				return 0, dagerrors.WrapBackend(err, "append", "recording ref snapshot row")
			}
			id, err := res.LastInsertId()
			if err != nil {
				return 0, dagerrors.WrapBackend(err, "append", "reading ref snapshot cursor")
			}
			cursor = id
		}
	}
	if cursor == 0 {
		// No branches at all: still record the head/main pair on its own.
		res, err := tx.Exec(
			`INSERT INTO ref_snapshots (head_oid, main_branch_oid, branch_oid, branch_name) VALUES (?, ?, '', '')`,
			headOid, snapshot.MainBranchOid.String(),
		)
		if err != nil {
			return 0, dagerrors.WrapBackend(err, "append", "recording ref snapshot row")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, dagerrors.WrapBackend(err, "append", "reading ref snapshot cursor")
		}
		cursor = id
	}
	if err := tx.Commit(); err != nil {
		return 0, dagerrors.WrapBackend(err, "append", "committing ref snapshot")
	}
	return dag.EventCursor(cursor), nil
}

// GetCursorOids returns every distinct oid observed through cursor.
func (r *SQLiteReplayer) GetCursorOids(cursor dag.EventCursor) ([]dag.NonZeroOid, error) {
	var hexOids []string
	err := r.db.Select(&hexOids, `SELECT DISTINCT oid FROM commit_events WHERE id <= ?`, int64(cursor))
	if err != nil {
		return nil, dagerrors.WrapBackend(err, "read", "querying observed oids")
	}
	return decodeOids(hexOids)
}

func decodeOids(hexOids []string) ([]dag.NonZeroOid, error) {
	out := make([]dag.NonZeroOid, 0, len(hexOids))
	for _, h := range hexOids {
		o, err := dag.OidFromHex(h)
		if err != nil {
			return nil, dagerrors.Wrapf(err, dagerrors.CodecError, "read", "decoding stored oid %q", h)
		}
		nz, err := dag.NewNonZeroOid(o)
		if err != nil {
			return nil, err
		}
		out = append(out, nz)
	}
	return out, nil
}

// GetCursorCommitActivityStatus returns oid's latest status at or before
// cursor, defaulting to Active if it was never observed.
func (r *SQLiteReplayer) GetCursorCommitActivityStatus(cursor dag.EventCursor, oid dag.NonZeroOid) (dag.CommitActivityStatus, error) {
	var status int
	err := r.db.Get(
		&status,
		`SELECT status FROM commit_events WHERE oid = ? AND id <= ? ORDER BY id DESC LIMIT 1`,
		oid.String(), int64(cursor),
	)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return dag.CommitActive, nil
		}
		return dag.CommitActive, dagerrors.WrapBackend(err, "read", "querying commit activity status for "+oid.String())
	}
	return dag.CommitActivityStatus(status), nil
}

// GetReferencesSnapshot reconstructs the latest references snapshot
// recorded at or before cursor.
func (r *SQLiteReplayer) GetReferencesSnapshot(repo dag.Repo, cursor dag.EventCursor) (*dag.ReferencesSnapshot, error) {
	type row struct {
		HeadOid       *string `db:"head_oid"`
		MainBranchOid string  `db:"main_branch_oid"`
		BranchOid     string  `db:"branch_oid"`
		BranchName    string  `db:"branch_name"`
	}

	var maxID int64
	if err := r.db.Get(&maxID, `SELECT COALESCE(MAX(id), 0) FROM ref_snapshots WHERE id <= ?`, int64(cursor)); err != nil {
		return nil, dagerrors.WrapBackend(err, "read", "locating latest ref snapshot")
	}
	if maxID == 0 {
		return nil, fmt.Errorf("eventlog: no references snapshot recorded at or before cursor %d", cursor)
	}

	var rows []row
	err := r.db.Select(&rows, `
		SELECT head_oid, main_branch_oid, branch_oid, branch_name
		FROM ref_snapshots
		WHERE main_branch_oid = (SELECT main_branch_oid FROM ref_snapshots WHERE id = ?)
		AND id <= ?
		ORDER BY id DESC
	`, maxID, int64(cursor))
	if err != nil {
		return nil, dagerrors.WrapBackend(err, "read", "reading ref snapshot rows")
	}

	snapshot := &dag.ReferencesSnapshot{BranchOidToNames: map[dag.NonZeroOid][]string{}}
	mainOid, err := dag.OidFromHex(rows[0].MainBranchOid)
	if err != nil {
		return nil, dagerrors.Wrapf(err, dagerrors.CodecError, "read", "decoding main branch oid")
	}
	snapshot.MainBranchOid, err = dag.NewNonZeroOid(mainOid)
	if err != nil {
		return nil, err
	}
	if rows[0].HeadOid != nil {
		headOid, err := dag.OidFromHex(*rows[0].HeadOid)
		if err != nil {
			return nil, dagerrors.Wrapf(err, dagerrors.CodecError, "read", "decoding head oid")
		}
		headNZ, err := dag.NewNonZeroOid(headOid)
		if err == nil {
			snapshot.HeadOid = &headNZ
		}
	}
	for _, rr := range rows {
		if rr.BranchOid == "" {
			continue
		}
		o, err := dag.OidFromHex(rr.BranchOid)
		if err != nil {
			continue
		}
		nz, err := dag.NewNonZeroOid(o)
		if err != nil {
			continue
		}
		snapshot.BranchOidToNames[nz] = append(snapshot.BranchOidToNames[nz], rr.BranchName)
	}
	return snapshot, nil
}
