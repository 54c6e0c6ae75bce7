//nolint:whitespace // can't make both editor and linter happy
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/scan"

	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/repository"
)

const table = "snapshot"

type (
	repo struct {
		db bob.DB
		tx repository.TransactionManager
	}
	row struct {
		ID         uuid.UUID `db:"id"`
		SessionKey int32     `db:"session_key"`
		Mode       string    `db:"mode"`
		Created    time.Time `db:"created"`
		Data       []byte    `db:"data"`
	}
)

var (
	_       archive.Store = (*repo)(nil)
	columns               = []any{"id", "session_key", "mode", "created", "data"}
)

// NewSnapshotRepository stores snapshots in postgres
func NewSnapshotRepository(db bob.DB) archive.Store {
	return &repo{db: db, tx: repository.NewTransactionManager(db)}
}

func (r *repo) Save(ctx context.Context, snap *archive.Snapshot, keep int) error {
	return r.tx.RunInTx(ctx, func(ctx context.Context) error {
		q := psql.Insert(
			im.Into(table, "id", "session_key", "mode", "created", "data"),
			im.Values(psql.Arg(
				snap.ID, int32(snap.SessionKey), snap.Mode, snap.Created, snap.Data)),
		)
		if _, err := bob.Exec(ctx, r.getExecutor(ctx), q); err != nil {
			return err
		}
		if keep <= 0 {
			return nil
		}
		return r.prune(ctx, snap.SessionKey, keep)
	})
}

// prune removes all but the newest keep snapshots of the session
func (r *repo) prune(ctx context.Context, sessionKey, keep int) error {
	newest := psql.Select(
		sm.Columns("id"),
		sm.From(table),
		sm.Where(psql.Quote("session_key").EQ(psql.Arg(int32(sessionKey)))),
		sm.OrderBy("created").Desc(),
		sm.Limit(keep),
	)
	q := psql.Delete(
		dm.From(table),
		dm.Where(psql.Quote("session_key").EQ(psql.Arg(int32(sessionKey)))),
		dm.Where(psql.Quote("id").NotIn(newest)),
	)
	_, err := bob.Exec(ctx, r.getExecutor(ctx), q)
	return err
}

func (r *repo) Latest(ctx context.Context, sessionKey int) (*archive.Snapshot, error) {
	res, err := r.List(ctx, sessionKey, 1)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, archive.ErrNotFound
	}
	return res[0], nil
}

func (r *repo) List(
	ctx context.Context, sessionKey, limit int,
) ([]*archive.Snapshot, error) {
	mods := bob.Mods[*dialect.SelectQuery]{
		sm.Columns(columns...),
		sm.From(table),
		sm.Where(psql.Quote("session_key").EQ(psql.Arg(int32(sessionKey)))),
		sm.OrderBy("created").Desc(),
	}
	if limit > 0 {
		mods = append(mods, sm.Limit(limit))
	}
	res, err := bob.All(ctx, r.getExecutor(ctx), psql.Select(mods...),
		scan.StructMapper[row]())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	ret := make([]*archive.Snapshot, len(res))
	for i := range res {
		ret[i] = res[i].toSnapshot()
	}
	return ret, nil
}

func (r *repo) Sessions(ctx context.Context) ([]int, error) {
	q := psql.Select(
		sm.Columns("session_key"),
		sm.Distinct(),
		sm.From(table),
		sm.OrderBy("session_key"),
	)
	res, err := bob.All(ctx, r.getExecutor(ctx), q, scan.SingleColumnMapper[int32])
	if err != nil {
		return nil, err
	}
	ret := make([]int, len(res))
	for i, v := range res {
		ret[i] = int(v)
	}
	return ret, nil
}

func (r *repo) DeleteSession(ctx context.Context, sessionKey int) (int, error) {
	q := psql.Delete(
		dm.From(table),
		dm.Where(psql.Quote("session_key").EQ(psql.Arg(int32(sessionKey)))),
	)
	res, err := bob.Exec(ctx, r.getExecutor(ctx), q)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// the pool is owned by the caller
func (r *repo) Close() error {
	return nil
}

func (r *repo) getExecutor(ctx context.Context) bob.Executor {
	return repository.Executor(ctx, r.db)
}

func (e row) toSnapshot() *archive.Snapshot {
	return &archive.Snapshot{
		ID:         e.ID,
		SessionKey: int(e.SessionKey),
		Mode:       e.Mode,
		Created:    e.Created,
		Data:       e.Data,
	}
}
