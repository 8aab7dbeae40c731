package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/oiclass/oiclass/core"
)

// repo holds what every repository needs: the default executor and a
// statement builder using the engine's placeholder format.
type repo struct {
	db core.DB
	sb sq.StatementBuilderType
}

func newRepo(db *sqlx.DB) repo {
	var ph sq.PlaceholderFormat = sq.Question
	if sqlx.BindType(db.DriverName()) == sqlx.DOLLAR {
		ph = sq.Dollar
	}
	return repo{db: db, sb: sq.StatementBuilder.PlaceholderFormat(ph)}
}

func (r repo) getExec(exec []core.DBExecutor) core.DBExecutor {
	return core.GetExec(r.db, exec)
}

func (r repo) get(ctx context.Context, exec []core.DBExecutor, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, r.getExec(exec), dest, query, args...)
}

func (r repo) selectRows(ctx context.Context, exec []core.DBExecutor, dest interface{}, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, r.getExec(exec), dest, query, args...)
}

func (r repo) exec(ctx context.Context, exec []core.DBExecutor, q sq.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return r.getExec(exec).ExecContext(ctx, query, args...)
}

// execAffected runs q and returns the number of affected rows.
func (r repo) execAffected(ctx context.Context, exec []core.DBExecutor, q sq.Sqlizer) (int, error) {
	res, err := r.exec(ctx, exec, q)
	if err != nil {
		return 0, err
	}
	cnt, err := res.RowsAffected()
	return int(cnt), err
}

func (r repo) count(ctx context.Context, exec []core.DBExecutor, q sq.SelectBuilder) (int, error) {
	var cnt int
	err := r.get(ctx, exec, &cnt, q)
	return cnt, err
}

// trapNoRowsErr maps sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err comes from a unique constraint or index.
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case *sqlite.Error:
		switch e.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return strings.Contains(e.Error(), "UNIQUE constraint failed")
	}
	return false
}

// orderBy appends the orderings, or def when there is none.
func orderBy(q sq.SelectBuilder, ordering []core.DBOrdering, def ...string) sq.SelectBuilder {
	if len(ordering) == 0 {
		return q.OrderBy(def...)
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return q.OrderBy(orderList...)
}

func paginate(q sq.SelectBuilder, page *core.Pagination) sq.SelectBuilder {
	if page == nil {
		return q
	}
	page.Clean()
	return q.Limit(page.Limit()).Offset(page.Offset())
}

// ilike is a portable case-insensitive LIKE on any of cols.
func ilike(search string, cols ...string) sq.Or {
	val := "%" + strings.ToLower(search) + "%"
	or := make(sq.Or, 0, len(cols))
	for _, col := range cols {
		or = append(or, sq.Expr("LOWER("+col+") LIKE ?", val))
	}
	return or
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func timeFromNull(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func timePtrFromNull(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time.UTC()
	return &tt
}

func nullTimeFromPtr(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}
