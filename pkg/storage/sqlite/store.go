//nolint:whitespace // can't make both editor and linter happy
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/sqlite"
	"github.com/stephenafamo/bob/dialect/sqlite/dialect"
	"github.com/stephenafamo/bob/dialect/sqlite/dm"
	"github.com/stephenafamo/bob/dialect/sqlite/im"
	"github.com/stephenafamo/bob/dialect/sqlite/sm"
	"github.com/stephenafamo/scan"
	_ "modernc.org/sqlite"

	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/db/migrate"
	"github.com/mpapenbr/openf1-insights/pkg/repository"
)

const table = "snapshot"

type (
	Store struct {
		raw *sql.DB
		db  bob.DB
		tx  repository.TransactionManager
	}
	row struct {
		ID         string `db:"id"`
		SessionKey int64  `db:"session_key"`
		Mode       string `db:"mode"`
		Created    int64  `db:"created"`
		Data       string `db:"data"`
	}
)

var (
	_       archive.Store = (*Store)(nil)
	columns               = []any{"id", "session_key", "mode", "created", "data"}
)

// New opens (and migrates) the sqlite database at path
func New(path string) (*Store, error) {
	if err := migrate.MigrateDb("sqlite://" + path); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY on concurrent saves
	raw.SetMaxOpenConns(1)
	if _, err := raw.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	db := bob.NewDB(raw)
	return &Store{raw: raw, db: db, tx: repository.NewTransactionManager(db)}, nil
}

func (s *Store) Save(ctx context.Context, snap *archive.Snapshot, keep int) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := sqlite.Insert(
			im.Into(table, "id", "session_key", "mode", "created", "data"),
			im.Values(sqlite.Arg(snap.ID.String(), snap.SessionKey, snap.Mode,
				snap.Created.UnixNano(), string(snap.Data))),
		)
		if _, err := bob.Exec(ctx, s.getExecutor(ctx), q); err != nil {
			return err
		}
		if keep <= 0 {
			return nil
		}
		newest := sqlite.Select(
			sm.Columns("id"),
			sm.From(table),
			sm.Where(sqlite.Quote("session_key").EQ(sqlite.Arg(snap.SessionKey))),
			sm.OrderBy("created").Desc(),
			sm.Limit(keep),
		)
		del := sqlite.Delete(
			dm.From(table),
			dm.Where(sqlite.Quote("session_key").EQ(sqlite.Arg(snap.SessionKey))),
			dm.Where(sqlite.Quote("id").NotIn(newest)),
		)
		_, err := bob.Exec(ctx, s.getExecutor(ctx), del)
		return err
	})
}

func (s *Store) Latest(ctx context.Context, sessionKey int) (*archive.Snapshot, error) {
	res, err := s.List(ctx, sessionKey, 1)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, archive.ErrNotFound
	}
	return res[0], nil
}

func (s *Store) List(
	ctx context.Context, sessionKey, limit int,
) ([]*archive.Snapshot, error) {
	mods := bob.Mods[*dialect.SelectQuery]{
		sm.Columns(columns...),
		sm.From(table),
		sm.Where(sqlite.Quote("session_key").EQ(sqlite.Arg(sessionKey))),
		sm.OrderBy("created").Desc(),
	}
	if limit > 0 {
		mods = append(mods, sm.Limit(limit))
	}
	res, err := bob.All(ctx, s.getExecutor(ctx), sqlite.Select(mods...),
		scan.StructMapper[row]())
	if err != nil {
		return nil, err
	}
	ret := make([]*archive.Snapshot, 0, len(res))
	for i := range res {
		snap, err := res[i].toSnapshot()
		if err != nil {
			return nil, err
		}
		ret = append(ret, snap)
	}
	return ret, nil
}

func (s *Store) Sessions(ctx context.Context) ([]int, error) {
	q := sqlite.Select(
		sm.Columns("session_key"),
		sm.From(table),
		sm.GroupBy("session_key"),
		sm.OrderBy("session_key"),
	)
	res, err := bob.All(ctx, s.getExecutor(ctx), q, scan.SingleColumnMapper[int64])
	if err != nil {
		return nil, err
	}
	ret := make([]int, len(res))
	for i, v := range res {
		ret[i] = int(v)
	}
	return ret, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionKey int) (int, error) {
	q := sqlite.Delete(
		dm.From(table),
		dm.Where(sqlite.Quote("session_key").EQ(sqlite.Arg(sessionKey))),
	)
	res, err := bob.Exec(ctx, s.getExecutor(ctx), q)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) Close() error {
	return s.raw.Close()
}

func (s *Store) getExecutor(ctx context.Context) bob.Executor {
	return repository.Executor(ctx, s.db)
}

func (e row) toSnapshot() (*archive.Snapshot, error) {
	id, err := uuid.FromString(e.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot id %q: %w", e.ID, err)
	}
	return &archive.Snapshot{
		ID:         id,
		SessionKey: int(e.SessionKey),
		Mode:       e.Mode,
		Created:    time.Unix(0, e.Created).UTC(),
		Data:       []byte(e.Data),
	}, nil
}
