package sqlxrepos

import (
	"context"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
)

var userColumns = []string{
	"id", "name", "username", "email", "is_active", "password_hash", "session_version",
	"luogu_uid", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Username       null.String `db:"username"`
	Email          null.String `db:"email"`
	IsActive       bool        `db:"is_active"`
	PasswordHash   string      `db:"password_hash"`
	SessionVersion int         `db:"session_version"`
	LuoguUID       null.String `db:"luogu_uid"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	LastLogin      null.Time   `db:"last_login"`
}

type roleRow struct {
	UserID string `db:"user_id"`
	Role   string `db:"role"`
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{repo: newRepo(db)}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       nullString(usr.Username),
		Email:          nullString(usr.Email),
		IsActive:       usr.IsActive,
		PasswordHash:   string(usr.PasswordHash),
		SessionVersion: usr.SessionVersion,
		LuoguUID:       nullString(usr.LuoguUID),
		CreatedAt:      usr.CreatedAt.UTC(),
		UpdatedAt:      usr.UpdatedAt.UTC(),
		LastLogin:      nullTime(usr.LastLogin),
	}
}

func (repo userRepository) fromRow(row userRow, roles []string) user.User {
	return user.User{
		ID:             row.ID,
		Name:           row.Name,
		Username:       row.Username.String,
		Email:          row.Email.String,
		IsActive:       row.IsActive,
		Roles:          normalizeRoles(roles),
		LuoguUID:       row.LuoguUID.String,
		PasswordHash:   []byte(row.PasswordHash),
		SessionVersion: row.SessionVersion,
		CreatedAt:      utc(row.CreatedAt),
		UpdatedAt:      utc(row.UpdatedAt),
		LastLogin:      timeFromNull(row.LastLogin),
	}
}

// normalizeRoles returns sorted, de-duplicated, non-nil roles.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]bool, len(roles))
	for _, role := range roles {
		if !seen[role] {
			seen[role] = true
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out
}

func (repo userRepository) loadRoles(ctx context.Context, rows []userRow, exec []core.DBExecutor) ([]user.User, error) {
	users := make([]user.User, 0, len(rows))
	if len(rows) == 0 {
		return users, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var roleRows []roleRow
	q := repo.sb.Select("user_id", "role").From("user_roles").Where(sq.Eq{"user_id": ids})
	if err := repo.selectRows(ctx, exec, &roleRows, q); err != nil {
		return nil, errors.Wrap(err, "selecting user roles")
	}
	roles := make(map[string][]string, len(rows))
	for _, rr := range roleRows {
		roles[rr.UserID] = append(roles[rr.UserID], rr.Role)
	}

	for _, row := range rows {
		users = append(users, repo.fromRow(row, roles[row.ID]))
	}
	return users, nil
}

func (repo userRepository) setRoles(ctx context.Context, id string, roles []string, exec []core.DBExecutor) error {
	if _, err := repo.exec(ctx, exec, repo.sb.Delete("user_roles").Where(sq.Eq{"user_id": id})); err != nil {
		return errors.Wrap(err, "clearing user roles")
	}
	if len(roles) == 0 {
		return nil
	}
	q := repo.sb.Insert("user_roles").Columns("user_id", "role")
	for _, role := range roles {
		q = q.Values(id, role)
	}
	_, err := repo.exec(ctx, exec, q)
	return errors.Wrap(err, "inserting user roles")
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	check := func(col, val string, errExists error) error {
		if val == "" {
			return nil
		}
		q := repo.sb.Select("COUNT(*)").From("users").Where(sq.Eq{col: val})
		if len(excludedUsers) > 0 {
			ids := make([]string, 0, len(excludedUsers))
			for _, u := range excludedUsers {
				ids = append(ids, u.ID)
			}
			q = q.Where(sq.NotEq{"id": ids})
		}
		cnt, err := repo.count(ctx, exec, q)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if cnt > 0 {
			return errExists
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	usr.Roles = normalizeRoles(usr.Roles)
	row := repo.toRow(usr)

	q := repo.sb.Insert("users").Columns(userColumns...).Values(
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.PasswordHash, row.SessionVersion,
		row.LuoguUID, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if _, err := repo.exec(ctx, exec, q); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	if err := repo.setRoles(ctx, usr.ID, usr.Roles, exec); err != nil {
		return user.User{}, err
	}
	return repo.fromRow(row, usr.Roles), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	q := repo.sb.Select(userColumns...).From("users")

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "name", "username", "email"))
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make(sq.Or, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, sq.Like{"role": role + "%"})
			}
			q = q.Where(sq.Expr("id IN (?)", sq.Select("user_id").From("user_roles").Where(roleConds)))
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			q = q.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			q = q.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	q = orderBy(q, ordering, "created_at DESC")

	var rows []userRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.loadRoles(ctx, rows, exec)
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := repo.sb.Select(userColumns...).From("users")

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		q = q.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		q = q.Where(sq.Eq{"email": filter.Email})
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Or{sq.Eq{"username": uname}, sq.Eq{"email": email}}).OrderBy("created_at").Limit(1)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, exec, &row, q); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	users, err := repo.loadRoles(ctx, []userRow{row}, exec)
	if err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	q := repo.sb.Select(userColumns...).From("users").Where(sq.Eq{"id": ids}).OrderBy("name", "created_at")

	var rows []userRow
	if err := repo.selectRows(ctx, exec, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting users by ID")
	}
	return repo.loadRoles(ctx, rows, exec)
}

// UpdateUser saves the user's profile, password and roles.
// The session version and last login are only changed through BumpSessionVersion.
func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.Roles = normalizeRoles(usr.Roles)
	row := repo.toRow(usr)

	q := repo.sb.Update("users").SetMap(map[string]interface{}{
		"name":          row.Name,
		"username":      row.Username,
		"email":         row.Email,
		"is_active":     row.IsActive,
		"password_hash": row.PasswordHash,
		"luogu_uid":     row.LuoguUID,
		"updated_at":    row.UpdatedAt,
	}).Where(sq.Eq{"id": usr.ID})

	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if cnt == 0 {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.setRoles(ctx, usr.ID, usr.Roles, exec); err != nil {
		return user.User{}, err
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exec...)
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) BumpSessionVersion(ctx context.Context, id string, lastLogin time.Time, exec ...core.DBExecutor) (user.User, error) {
	q := repo.sb.Update("users").Set("session_version", sq.Expr("session_version + 1")).Where(sq.Eq{"id": id})
	if !lastLogin.IsZero() {
		q = q.Set("last_login", lastLogin.UTC())
	}
	cnt, err := repo.execAffected(ctx, exec, q)
	if err != nil {
		return user.User{}, errors.Wrap(err, "bumping session version")
	}
	if cnt == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: id}, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cnt, err := repo.execAffected(ctx, exec, repo.sb.Delete("users").Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return cnt, nil
}
