package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/gigglesedu/giggles/core"
	"github.com/gigglesedu/giggles/core/user"
)

type userRow struct {
	ID           string     `db:"id"`
	Email        string     `db:"email"`
	FullName     string     `db:"full_name"`
	UserType     string     `db:"user_type"`
	Roles        string     `db:"roles"`
	IsActive     bool       `db:"is_active"`
	PasswordHash null.Bytes `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	LastLogin    null.Time  `db:"last_login"`
}

type profileRow struct {
	UserID     string    `db:"user_id"`
	Age        null.Int  `db:"age"`
	GradeLevel string    `db:"grade_level"`
	CreatedAt  time.Time `db:"created_at"`
}

const userColumns = "id, email, full_name, user_type, roles, is_active, password_hash, created_at, updated_at, last_login"

var userOrderings = map[string]string{
	"email":      "email",
	"full_name":  "full_name",
	"user_type":  "user_type",
	"is_active":  "is_active",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Email:        usr.Email,
		FullName:     usr.FullName,
		UserType:     usr.UserType,
		Roles:        strings.Join(usr.Roles, ","),
		IsActive:     usr.IsActive,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	var roles []string
	if row.Roles != "" {
		roles = strings.Split(row.Roles, ",")
	}
	usr := user.User{
		ID:           row.ID,
		Email:        row.Email,
		FullName:     row.FullName,
		UserType:     row.UserType,
		IsActive:     row.IsActive,
		Roles:        roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	var w where
	w.add("email = ?", email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		w.add("id NOT IN (?)", ids)
	}
	query, args, err := in("SELECT COUNT(*) FROM users"+w.String(), w.args...)
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var count int
	if err = get(ctx, repo.getExec(exec), &count, query, args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = newID()
	row := repo.toRow(usr)
	_, err := execute(ctx, repo.getExec(exec),
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		row.ID, row.Email, row.FullName, row.UserType, row.Roles, row.IsActive, row.PasswordHash,
		row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		return user.User{}, trapUniqueErr(err, user.ErrEmailExists, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var w where

	if filter != nil {
		// users with FullName or Email matching the search keyword
		if filter.Search != "" {
			val := likeValue(filter.Search)
			w.add("(LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?)", val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			conds := make([]string, 0, len(filter.Roles))
			args := make([]interface{}, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				conds = append(conds, "(',' || roles) LIKE ?")
				args = append(args, "%,"+role+"%")
			}
			w.add("("+strings.Join(conds, " OR ")+")", args...)
		}
		if filter.UserType != "" {
			w.add("user_type = ?", filter.UserType)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	var rows []userRow
	query := "SELECT " + userColumns + " FROM users" + w.String() + orderBy(ordering, userOrderings)
	if err := selectAll(ctx, repo.getExec(exec), &rows, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := get(ctx, repo.getExec(exec), &row, "SELECT "+userColumns+" FROM users"+w.String(), w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.toRow(usr)
	n, err := execute(ctx, repo.getExec(exec),
		`UPDATE users SET email = ?, full_name = ?, user_type = ?, roles = ?, is_active = ?, password_hash = ?,
			updated_at = ?, last_login = ?
		WHERE id = ?`,
		row.Email, row.FullName, row.UserType, row.Roles, row.IsActive, row.PasswordHash,
		row.UpdatedAt, row.LastLogin, row.ID,
	)
	if err != nil {
		return user.User{}, trapUniqueErr(err, user.ErrEmailExists, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := in("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	cnt, err := execute(ctx, repo.getExec(exec), query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return cnt, nil
}

func (repo userRepository) fromProfileRow(row profileRow) user.Profile {
	return user.Profile{
		UserID:     row.UserID,
		Age:        row.Age.Ptr(),
		GradeLevel: row.GradeLevel,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

func (repo userRepository) GetOrCreateProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (user.Profile, error) {
	exe := repo.getExec(exec)
	if !isUUID(userID) {
		return user.Profile{}, user.ErrProfileNotFound
	}

	var row profileRow
	query := "SELECT user_id, age, grade_level, created_at FROM profiles WHERE user_id = ?"
	err := get(ctx, exe, &row, query, userID)
	if err == nil {
		return repo.fromProfileRow(row), nil
	}
	if err != sql.ErrNoRows {
		return user.Profile{}, errors.Wrap(err, "finding profile")
	}

	_, err = execute(ctx, exe,
		"INSERT INTO profiles (user_id, grade_level, created_at) VALUES (?, '', ?) ON CONFLICT (user_id) DO NOTHING",
		userID, core.Now(),
	)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "inserting profile")
	}
	if err = get(ctx, exe, &row, query, userID); err != nil {
		return user.Profile{}, trapNoRowsErr(err, user.ErrProfileNotFound, "finding profile")
	}
	return repo.fromProfileRow(row), nil
}

func (repo userRepository) UpdateProfile(ctx context.Context, profile user.Profile, exec ...core.DBExecutor) (user.Profile, error) {
	n, err := execute(ctx, repo.getExec(exec),
		"UPDATE profiles SET age = ?, grade_level = ? WHERE user_id = ?",
		null.IntFromPtr(profile.Age), profile.GradeLevel, profile.UserID,
	)
	if err != nil {
		return user.Profile{}, errors.Wrap(err, "updating profile")
	}
	if n == 0 {
		return user.Profile{}, user.ErrProfileNotFound
	}
	return profile, nil
}
