package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/redis"
	"github.com/notes-bin/promptgallery/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNoSession          = errors.New("no valid session")
)

// SessionStore keeps the server side of a session; *redis.Client implements it.
type SessionStore interface {
	SaveSession(ctx context.Context, sid string, userID uuid.UUID, ttl time.Duration) error
	GetSession(ctx context.Context, sid string) (uuid.UUID, error)
	DeleteSession(ctx context.Context, sid string) error
}

type Session struct {
	ID        string
	Token     string
	UserID    uuid.UUID
	Username  string
	ExpiresAt time.Time
}

type Auth struct {
	secret   []byte
	users    repository.UserRepository
	sessions SessionStore
	ttl      time.Duration
	cost     int
	// compared against when the username is unknown so both failures cost the same
	dummyHash []byte
}

func NewAuth(secret string, users repository.UserRepository, sessions SessionStore, ttl time.Duration) *Auth {
	a := &Auth{
		secret:   []byte(secret),
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
	}
	a.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), a.cost)
	return a
}

func (a *Auth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates the user and an empty profile. A taken username is
// reported as a *form.ValidationError on the username field.
func (a *Auth) Register(ctx context.Context, reg form.Registration) (*model.User, error) {
	hashed, err := a.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}
	user, err := a.users.CreateWithProfile(ctx, &model.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hashed,
	})
	if errors.Is(err, repository.ErrDuplicateUsername) {
		return nil, form.NewValidationError("username", "A user with that username already exists.")
	}
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", reg.Username, err)
	}
	return user, nil
}

// Login checks the credentials and starts a session.
func (a *Auth) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := a.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.StartSession(ctx, user)
}

// StartSession records a new session for user and signs its cookie token.
func (a *Auth) StartSession(ctx context.Context, user *model.User) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		ExpiresAt: time.Now().Add(a.ttl),
	}
	token, err := a.GenerateToken(s)
	if err != nil {
		return nil, err
	}
	s.Token = token
	if err := a.sessions.SaveSession(ctx, s.ID, s.UserID, a.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

func (a *Auth) GenerateToken(s *Session) (string, error) {
	claims := jwt.MapClaims{
		"sub":      s.UserID.String(),
		"sid":      s.ID,
		"username": s.Username,
		"exp":      s.ExpiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) parse(tokenStr string, opts ...jwt.ParserOption) (*Session, error) {
	claims := jwt.MapClaims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrNoSession
	}

	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	username, _ := claims["username"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil || sid == "" {
		return nil, ErrNoSession
	}
	s := &Session{ID: sid, Token: tokenStr, UserID: userID, Username: username}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// Authenticate accepts a token only while its server-side record exists
// and belongs to the same user.
func (a *Auth) Authenticate(ctx context.Context, tokenStr string) (*Session, error) {
	if tokenStr == "" {
		return nil, ErrNoSession
	}
	s, err := a.parse(tokenStr, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	userID, err := a.sessions.GetSession(ctx, s.ID)
	if errors.Is(err, redis.ErrSessionNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if userID != s.UserID {
		return nil, ErrNoSession
	}
	return s, nil
}

// Logout revokes the session behind tokenStr. Unparseable tokens are ignored.
func (a *Auth) Logout(ctx context.Context, tokenStr string) error {
	s, err := a.parse(tokenStr, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil
	}
	return a.sessions.DeleteSession(ctx, s.ID)
}

// CurrentUser loads the user behind an authenticated session.
func (a *Auth) CurrentUser(ctx context.Context, s *Session) (*model.User, error) {
	user, err := a.users.FindByID(ctx, s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoSession
	}
	return user, err
}
