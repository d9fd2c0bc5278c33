package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/auth"
	"github.com/suPer8Hu/ai-roleplay/internal/email"
	"github.com/suPer8Hu/ai-roleplay/internal/models"
)

// LoginLimiter tracks failed logins per username. *redisstore.Store implements it.
type LoginLimiter interface {
	LoginLocked(ctx context.Context, username string) (bool, error)
	RegisterLoginFailure(ctx context.Context, username string, maxAttempts int, lockout time.Duration) (bool, error)
	ResetLoginFailures(ctx context.Context, username string) error
}

type Options struct {
	JWTSecret        string
	TokenTTL         time.Duration
	LoginMaxAttempts int
	LoginLockout     time.Duration
}

type Service struct {
	repo    *Repo
	limiter LoginLimiter
	mailer  email.Sender
	opts    Options
	log     zerolog.Logger
}

// NewService wires the user service. limiter and mailer may be nil.
func NewService(repo *Repo, limiter LoginLimiter, mailer email.Sender, opts Options, log zerolog.Logger) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.LoginLockout <= 0 {
		opts.LoginLockout = 15 * time.Minute
	}
	return &Service{repo: repo, limiter: limiter, mailer: mailer, opts: opts, log: log}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	addr := strings.ToLower(strings.TrimSpace(in.Email))

	if err := auth.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(addr); err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	n, err := s.repo.CountTaken(ctx, username, addr)
	if err != nil {
		return nil, fmt.Errorf("check duplicates: %w", err)
	}
	if n > 0 {
		return nil, apperr.Conflict("username or email already registered")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Username:     username,
		Email:        addr,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Status:       models.UserActive,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("username or email already registered")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.mailer != nil {
		go func(to, name string) {
			subject, body := email.WelcomeMessage(name)
			if err := s.mailer.SendText(to, subject, body); err != nil {
				s.log.Warn().Err(err).Str("to", to).Msg("welcome mail not sent")
			}
		}(u.Email, u.Username)
	}
	return u, nil
}

type LoginResult struct {
	Token     string
	ExpiresIn int64
	User      *models.User
}

// Login checks credentials. Unknown users and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password required")
	}

	if s.limiter != nil && s.opts.LoginMaxAttempts > 0 {
		locked, err := s.limiter.LoginLocked(ctx, username)
		if err != nil {
			s.log.Warn().Err(err).Msg("login limiter unavailable")
		} else if locked {
			return nil, apperr.New(apperr.KindRateLimited, "too many failed attempts, try again later")
		}
	}

	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}
	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	if !auth.CheckPassword(hash, password) {
		s.recordFailure(ctx, username)
		return nil, apperr.Unauthenticated("invalid username or password")
	}
	if !u.IsActive() {
		return nil, apperr.Unauthorized("account disabled")
	}

	if s.limiter != nil {
		if err := s.limiter.ResetLoginFailures(ctx, username); err != nil {
			s.log.Warn().Err(err).Msg("reset login failures")
		}
	}

	token, err := auth.SignJWT(u.ID, s.opts.JWTSecret, s.opts.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:     token,
		ExpiresIn: int64(s.opts.TokenTTL / time.Second),
		User:      u,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, username string) {
	if s.limiter == nil || s.opts.LoginMaxAttempts <= 0 {
		return
	}
	locked, err := s.limiter.RegisterLoginFailure(ctx, username, s.opts.LoginMaxAttempts, s.opts.LoginLockout)
	if err != nil {
		s.log.Warn().Err(err).Msg("record login failure")
		return
	}
	if locked {
		s.log.Info().Str("username", username).Msg("login locked")
	}
}

// Verify resolves a bearer token to an active user id.
func (s *Service) Verify(ctx context.Context, token string) (uint64, error) {
	uid, err := auth.ParseJWT(token, s.opts.JWTSecret)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnauthenticated, "invalid or expired token", err)
	}
	u, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.Unauthenticated("invalid or expired token")
		}
		return 0, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive() {
		return 0, apperr.Unauthenticated("account disabled")
	}
	return uid, nil
}

func (s *Service) Get(ctx context.Context, id uint64) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return u, nil
}

// ProfileUpdate holds optional fields; nil leaves the column untouched.
type ProfileUpdate struct {
	FullName  *string
	AvatarURL *string
	Bio       *string
	Email     *string
}

func (s *Service) UpdateProfile(ctx context.Context, id uint64, in ProfileUpdate) (*models.User, error) {
	fields := map[string]any{}
	if in.FullName != nil {
		v := strings.TrimSpace(*in.FullName)
		if len([]rune(v)) > 128 {
			return nil, apperr.Validation("full_name too long")
		}
		fields["full_name"] = v
	}
	if in.AvatarURL != nil {
		v := strings.TrimSpace(*in.AvatarURL)
		if len(v) > 500 {
			return nil, apperr.Validation("avatar_url too long")
		}
		fields["avatar_url"] = v
	}
	if in.Bio != nil {
		v := strings.TrimSpace(*in.Bio)
		if len([]rune(v)) > 500 {
			return nil, apperr.Validation("bio too long")
		}
		fields["bio"] = v
	}
	if in.Email != nil {
		addr := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validateEmail(addr); err != nil {
			return nil, err
		}
		taken, err := s.repo.EmailTakenByOther(ctx, addr, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict("email already registered")
		}
		fields["email"] = addr
	}

	if len(fields) > 0 {
		if err := s.repo.Update(ctx, id, fields); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, apperr.Conflict("email already registered")
			}
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func validateEmail(addr string) error {
	if addr == "" {
		return apperr.Validation("email required")
	}
	if len(addr) > 128 {
		return apperr.Validation("email too long")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return apperr.Validation("invalid email")
	}
	return nil
}
