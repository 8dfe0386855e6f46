package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	Create(ctx context.Context, user models.NewUser) (models.User, error)
	GetByID(ctx context.Context, id int) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByIDs(ctx context.Context, ids []int) ([]models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, id int, update models.UserUpdate) (models.User, error)
}

const userColumns = `id, username, email, first_name, last_name, profile_image, hashed_password, is_active, created_at, updated_at`

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a user. Unique indexes on username and email decide racing writers.
func (r *UserRepo) Create(ctx context.Context, user models.NewUser) (models.User, error) {
	var created models.User
	err := r.db.GetContext(ctx, &created, `INSERT INTO users (username, email, first_name, last_name, profile_image, hashed_password)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+userColumns,
		user.Username, user.Email, user.FirstName, user.LastName, user.ProfileImage, user.PasswordHash)
	if err != nil {
		return models.User{}, translateUniqueViolation(err)
	}
	return created, nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int) (models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByUsername fetches a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

// GetByEmail fetches a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

// GetByIDs fetches several users at once. Unknown ids are skipped.
func (r *UserRepo) GetByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	id64s := make([]int64, 0, len(ids))
	for _, id := range ids {
		id64s = append(id64s, int64(id))
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY id`, pq.Array(id64s))
	return users, err
}

// List returns active users ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE is_active = TRUE ORDER BY id`)
	return users, err
}

// Update applies the non-nil fields of update.
func (r *UserRepo) Update(ctx context.Context, id int, update models.UserUpdate) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `UPDATE users SET
            email = COALESCE($2, email),
            first_name = COALESCE($3, first_name),
            last_name = COALESCE($4, last_name),
            profile_image = COALESCE($5, profile_image),
            hashed_password = COALESCE($6, hashed_password),
            is_active = COALESCE($7, is_active),
            updated_at = NOW()
        WHERE id=$1 RETURNING `+userColumns,
		id, update.Email, update.FirstName, update.LastName, update.ProfileImage, update.PasswordHash, update.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, translateUniqueViolation(err)
	}
	return user, nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, "username"):
		return &DuplicateError{Field: "username"}
	case strings.Contains(pqErr.Constraint, "email"):
		return &DuplicateError{Field: "email"}
	default:
		return &DuplicateError{Field: pqErr.Constraint}
	}
}
