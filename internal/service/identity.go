package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pairchat/internal/apperr"
	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hashed string) error
}

// RegisterInput carries a new account.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=150,username"`
	Email    string `json:"email" validate:"required,max=254,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Bio      string `json:"bio" validate:"max=500"`
}

// ProfileInput changes the non-nil profile fields.
type ProfileInput struct {
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
	AvatarRef *string `json:"avatar" validate:"omitempty,max=2048"`
}

// Identity owns user records.
type Identity struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	now    Clock
}

func NewIdentity(users repositories.UserRepository, hasher PasswordHasher) *Identity {
	return &Identity{users: users, hasher: hasher, now: UTCNow}
}

// Register creates an account. Taken usernames or emails are reported as
// field-level validation errors.
func (s *Identity) Register(ctx context.Context, in RegisterInput) (user models.User, err error) {
	ctx, span := startSpan(ctx, "identity.register")
	defer func() { endSpan(span, err) }()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return models.User{}, err
	}
	if err := s.checkAvailable(ctx, in.Username, in.Email); err != nil {
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, storageError("hash password", err)
	}

	now := s.now()
	user = models.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Bio:          in.Bio,
		LastSeen:     now,
		CreatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			// lost a race with another registration
			if taken := s.checkAvailable(ctx, in.Username, in.Email); taken != nil {
				return models.User{}, taken
			}
			return models.User{}, apperr.Invalid("username", "already taken")
		}
		return models.User{}, storageError("create user", err)
	}
	return user, nil
}

func (s *Identity) checkAvailable(ctx context.Context, username, email string) error {
	fields := map[string]string{}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		fields["username"] = "already taken"
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return storageError("lookup username", err)
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		fields["email"] = "already taken"
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return storageError("lookup email", err)
	}
	if len(fields) > 0 {
		return apperr.Validation("account already exists", fields)
	}
	return nil
}

// Authenticate checks credentials and records the login as activity.
func (s *Identity) Authenticate(ctx context.Context, username, password string) (user models.User, err error) {
	ctx, span := startSpan(ctx, "identity.authenticate")
	defer func() { endSpan(span, err) }()

	user, err = s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, apperr.Unauthenticated("invalid credentials")
	}
	if err != nil {
		return models.User{}, storageError("lookup user", err)
	}
	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		return models.User{}, apperr.Unauthenticated("invalid credentials")
	}

	user.LastSeen = s.now()
	if err := s.users.TouchLastSeen(ctx, user.ID, user.LastSeen); err != nil {
		return models.User{}, storageError("touch user", err)
	}
	return user, nil
}

// GetUser looks a user up by id.
func (s *Identity) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, storageError("get user", err)
	}
	return user, nil
}

// UpdateProfile changes bio and avatar.
func (s *Identity) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (user models.User, err error) {
	ctx, span := startSpan(ctx, "identity.update_profile", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return models.User{}, err
	}
	user, err = s.users.UpdateProfile(ctx, userID, in.Bio, in.AvatarRef)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.User{}, storageError("update profile", err)
	}
	return user, nil
}

// Touch records activity for the user.
func (s *Identity) Touch(ctx context.Context, userID uuid.UUID) error {
	err := s.users.TouchLastSeen(ctx, userID, s.now())
	if errors.Is(err, repositories.ErrUserNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return storageError("touch user", err)
	}
	return nil
}

// DeleteAccount removes the user, every chat they take part in and all
// messages of those chats.
func (s *Identity) DeleteAccount(ctx context.Context, userID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "identity.delete_account", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	err = s.users.DeleteUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return storageError("delete user", err)
	}
	return nil
}
