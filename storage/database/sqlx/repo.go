// Package sqlxrepos implements the domain repositories with plain SQL over sqlx.
// Queries use "?" placeholders, rebound to the executor's driver.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/gigglesedu/giggles/core"
)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func isPostgres(exec core.DBExecutor) bool {
	return exec.DriverName() == "postgres"
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, exec, dest, exec.Rebind(query), args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(query), args...)
}

func execute(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// in expands the slice arguments of query, e.g. for "id IN (?)".
func in(query string, args ...interface{}) (string, []interface{}, error) {
	return sqlx.In(query, args...)
}

// trapNoRowsErr maps the "no rows" error to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps unique constraint violations to exists.
func trapUniqueErr(err error, exists error, msg string) error {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		if e.Code == "23505" {
			return exists
		}
	case *sqlite.Error:
		if e.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || strings.Contains(e.Error(), "UNIQUE constraint failed") {
			return exists
		}
	}
	return errors.Wrap(err, msg)
}

// isUUID filters out ids that cannot match any row.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func newID() string {
	return uuid.New().String()
}

// orderBy builds an ORDER BY clause out of the allowed columns only.
func orderBy(ordering []core.DBOrdering, allowed map[string]string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		list = append(list, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(list) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func likeValue(s string) string {
	return "%" + strings.ToLower(s) + "%"
}
