package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"shopapi/internal/domain/model"
	"shopapi/internal/repository"

	"go.uber.org/zap"
)

// パスワードのハッシュ化（bcrypt）
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// アクセストークン発行（JWT）
type TokenIssuer interface {
	Issue(user model.User) (string, error)
}

type UserDTO struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        model.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthOutput struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

type AuthUsecase struct {
	users  repository.UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	logger *zap.Logger
}

func NewAuthUsecase(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	logger *zap.Logger,
) *AuthUsecase {
	return &AuthUsecase{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}
}

// 入力の形式チェックはhandler（validator）で済んでいる前提
func (u *AuthUsecase) Signup(ctx context.Context, in SignupInput) (AuthOutput, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" || strings.TrimSpace(in.Name) == "" {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "name, email and password are required")
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return AuthOutput{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	user := &model.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: pwHash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return AuthOutput{}, NewHTTPError(http.StatusConflict, "user already exists with this email")
		}
		return AuthOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}

	token, err := u.tokens.Issue(*user)
	if err != nil {
		return AuthOutput{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	u.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return AuthOutput{Token: token, User: toUserDTO(*user)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (AuthOutput, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthOutput{}, NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	//メール違いとパスワード違いは同じメッセージ
	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}
	if err != nil {
		return AuthOutput{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	if err := u.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return AuthOutput{}, NewHTTPError(http.StatusForbidden, "account is deactivated")
	}

	if err := u.users.UpdateLastLogin(ctx, user.ID); err != nil {
		u.logger.Warn("update last login", zap.Int64("user_id", user.ID), zap.Error(err))
	} else {
		now := time.Now()
		user.LastLoginAt = &now
	}

	token, err := u.tokens.Issue(user)
	if err != nil {
		return AuthOutput{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	u.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return AuthOutput{Token: token, User: toUserDTO(user)}, nil
}

func (u *AuthUsecase) Profile(ctx context.Context, userID int64) (UserDTO, error) {
	if userID <= 0 {
		return UserDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return UserDTO{}, NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return UserDTO{}, WrapHTTPError(http.StatusInternalServerError, "db error", err)
	}
	return toUserDTO(user), nil
}

// model.UserをAPI返却用DTOに変換。
func toUserDTO(u model.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
