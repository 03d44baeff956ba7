package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pairchat/internal/models"
)

// UserRepository abstracts user persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	TouchLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, bio *string, avatarRef *string) (models.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, password_hash, avatar_ref, bio, last_seen, created_at`

// CreateUser inserts a new user. Username or email collisions yield ErrDuplicate.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.Username, user.Email, user.PasswordHash, user.AvatarRef, user.Bio, user.LastSeen, user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return r.getBy(ctx, "id", userID)
}

// GetUserByUsername fetches a user by username.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getBy(ctx, "username", username)
}

// GetUserByEmail fetches a user by email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepo) getBy(ctx context.Context, column string, value any) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE `+column+`=?`), value)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// TouchLastSeen records activity for the user.
func (r *UserRepo) TouchLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET last_seen=? WHERE id=?`), at, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfile sets the non-nil profile fields and returns the updated user.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, bio *string, avatarRef *string) (models.User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if bio != nil {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET bio=? WHERE id=?`), *bio, userID); err != nil {
			return models.User{}, fmt.Errorf("update bio: %w", err)
		}
	}
	if avatarRef != nil {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET avatar_ref=? WHERE id=?`), *avatarRef, userID); err != nil {
			return models.User{}, fmt.Errorf("update avatar: %w", err)
		}
	}

	var user models.User
	err = tx.GetContext(ctx, &user, tx.Rebind(`SELECT `+userColumns+` FROM users WHERE id=?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, tx.Commit()
}

// DeleteUser removes the user together with every chat they take part in
// and every message of those chats.
func (r *UserRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE chat_id IN (
            SELECT id FROM chats WHERE user1_id=? OR user2_id=?)`), userID, userID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM chats WHERE user1_id=? OR user2_id=?`), userID, userID); err != nil {
		return fmt.Errorf("delete chats: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id=?`), userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return tx.Commit()
}
