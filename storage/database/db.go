package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/gigglesedu/giggles/assets"
	"github.com/gigglesedu/giggles/core"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(EngineSQLite, sqlx.QUESTION)
}

func postgresURL(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   EnginePostgres,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN returns the modernc.org/sqlite DSN of the database file at path.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	switch conf.Database.Engine {
	case EnginePostgres:
		db, err := sqlx.Open(EnginePostgres, postgresURL(dbName, admin, conf))
		if err != nil {
			return nil, err
		}
		if conf.Database.MaxOpenConns > 0 {
			db.SetMaxOpenConns(conf.Database.MaxOpenConns)
		}
		return db, nil
	case EngineSQLite:
		db, err := sqlx.Open(EngineSQLite, SQLiteDSN(conf.Database.Path))
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
}

// Open opens the app database of the configured engine.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query string, args ...interface{}) (bool, error) {
	var found []bool
	if err := db.Select(&found, db.Rebind(query), args...); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = ?", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		// identifiers cannot be bound
		q := fmt.Sprintf("CREATE USER %q CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = ?", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %q", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the postgres app user and database. sqlite creates its file on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.IsSQLite() {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

func gooseDialect(engine string) string {
	if engine == EngineSQLite {
		return "sqlite3"
	}
	return engine
}

// Migrate applies the embedded migrations of the given engine.
func Migrate(db *sql.DB, engine string) error {
	goose.SetBaseFS(assets.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect(engine)); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	if err := goose.Up(db, assets.MigrationsDir(engine)); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// RunMigrations runs a goose command (up, down, status, ...) on the embedded migrations of the given engine.
func RunMigrations(db *sql.DB, engine, command string, args ...string) error {
	goose.SetBaseFS(assets.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect(engine)); err != nil {
		return errors.Wrap(err, "setting migrations dialect")
	}
	return goose.Run(command, db, assets.MigrationsDir(engine), args...)
}
