package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reachend/auth-service/internal/core/domain"
	"github.com/reachend/auth-service/internal/core/ports"
)

const uniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, role, is_deleted, deleted_at,
	reset_token, reset_token_expires, otp_code, otp_expires_at, created_at, updated_at`

// UserRepository implements ports.UserRepository on the users table.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	const op = "postgres.UserRepository.Create"

	query := `INSERT INTO users (name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	created := *user
	err := r.db.QueryRowContext(ctx, query,
		user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt,
	).Scan(&created.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &created, nil
}

func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "postgres.UserRepository.FindActiveByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_deleted = FALSE`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgres.UserRepository.FindByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	const op = "postgres.UserRepository.List"

	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0, max(filter.Limit, 0))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, userID int64, token string, expiresAt, at time.Time) error {
	const op = "postgres.UserRepository.SetResetToken"

	query := `UPDATE users SET reset_token = $1, reset_token_expires = $2, updated_at = $3
		WHERE id = $4 AND is_deleted = FALSE`
	return r.execOne(ctx, op, domain.ErrUserNotFound, query, token, expiresAt, at, userID)
}

func (r *UserRepository) SetOTP(ctx context.Context, userID int64, code string, expiresAt, at time.Time) error {
	const op = "postgres.UserRepository.SetOTP"

	query := `UPDATE users SET otp_code = $1, otp_expires_at = $2, updated_at = $3
		WHERE id = $4 AND is_deleted = FALSE`
	return r.execOne(ctx, op, domain.ErrUserNotFound, query, code, expiresAt, at, userID)
}

// ConsumeResetToken swaps the password and clears the token in one statement,
// so two concurrent redemptions of the same token cannot both succeed.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, email, token, passwordHash string, now time.Time) error {
	const op = "postgres.UserRepository.ConsumeResetToken"

	query := `UPDATE users
		SET password_hash = $1, reset_token = NULL, reset_token_expires = NULL, updated_at = $2
		WHERE email = $3 AND is_deleted = FALSE AND reset_token = $4 AND reset_token_expires > $2`
	return r.execOne(ctx, op, domain.ErrInvalidToken, query, passwordHash, now, email, token)
}

func (r *UserRepository) ConsumeOTP(ctx context.Context, email, code, passwordHash string, now time.Time) error {
	const op = "postgres.UserRepository.ConsumeOTP"

	query := `UPDATE users
		SET password_hash = $1, otp_code = NULL, otp_expires_at = NULL, updated_at = $2
		WHERE email = $3 AND is_deleted = FALSE AND otp_code = $4 AND otp_expires_at > $2`
	return r.execOne(ctx, op, domain.ErrInvalidOrExpiredOTP, query, passwordHash, now, email, code)
}

func (r *UserRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	const op = "postgres.UserRepository.SoftDelete"

	query := `UPDATE users
		SET is_deleted = TRUE, deleted_at = $1, updated_at = $1,
		    reset_token = NULL, reset_token_expires = NULL, otp_code = NULL, otp_expires_at = NULL
		WHERE id = $2 AND is_deleted = FALSE`
	err := r.execOne(ctx, op, domain.ErrUserNotFound, query, at, id)
	if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	// Nothing updated: tell a missing row apart from one that is already deleted.
	var deleted bool
	if err := r.db.QueryRowContext(ctx, `SELECT is_deleted FROM users WHERE id = $1`, id).Scan(&deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.ErrAlreadyDeleted
}

func (r *UserRepository) HardDelete(ctx context.Context, id int64) error {
	const op = "postgres.UserRepository.HardDelete"
	return r.execOne(ctx, op, domain.ErrUserNotFound, `DELETE FROM users WHERE id = $1`, id)
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// execOne runs a statement expected to touch exactly one row and returns
// noRows when it touched none.
func (r *UserRepository) execOne(ctx context.Context, op string, noRows error, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return noRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                       domain.User
		role                    string
		deletedAt, resetExpires sql.NullTime
		otpExpires              sql.NullTime
		resetToken, otpCode     sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.IsDeleted, &deletedAt,
		&resetToken, &resetExpires, &otpCode, &otpExpires, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if u.Role, err = domain.ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	u.DeletedAt = nullTime(deletedAt)
	u.ResetToken = nullString(resetToken)
	u.ResetTokenExpires = nullTime(resetExpires)
	u.OTPCode = nullString(otpCode)
	u.OTPExpiresAt = nullTime(otpExpires)
	return &u, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
