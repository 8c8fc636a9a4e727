package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"workflow-dashboard/internal/hashing"
	"workflow-dashboard/internal/mailer"
	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"
	"workflow-dashboard/internal/token"
	"workflow-dashboard/internal/util"
)

// LoginPath is the branch a login attempt takes.
type LoginPath int

const (
	PathReject LoginPath = iota
	PathBypassTwoFactor
	PathRequireTwoFactor
)

// decideLoginPath is the only place the login branch is chosen.
func decideLoginPath(credentialsValid, trustValid bool) LoginPath {
	switch {
	case !credentialsValid:
		return PathReject
	case trustValid:
		return PathBypassTwoFactor
	default:
		return PathRequireTwoFactor
	}
}

// TrustInstruction tells the transport what to do with the client-held
// trust credential.
type TrustInstruction int

const (
	TrustKeep TrustInstruction = iota
	TrustPersist
	TrustClear
)

type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
	// TrustToken is the refresh token the client presented, if any.
	TrustToken string
}

type LoginResult struct {
	RequiresCode bool
	Token        string
	User         *model.PublicUser
	UserID       string
	RememberMe   bool
	Message      string
}

type VerifyCodeRequest struct {
	UserID     string
	Code       string
	RememberMe bool
}

type VerifyCodeResult struct {
	Token          string
	User           model.PublicUser
	RefreshToken   string
	Trust          TrustInstruction
	TrustExpiresAt time.Time
}

type RefreshResult struct {
	Token        string
	RefreshToken string
	User         model.PublicUser
}

type LogoutResult struct {
	ClearAccess bool
	Trust       TrustInstruction
}

// AuthService runs the login state machine: password, optional emailed code,
// access token, device-trust token.
type AuthService struct {
	users  repository.UserRepository
	codes  *CodeManager
	tokens *token.Manager
	hasher *hashing.Hasher
	mailer mailer.Sender
	logger *zap.Logger
}

func NewAuthService(
	users repository.UserRepository,
	codes *CodeManager,
	tokens *token.Manager,
	hasher *hashing.Hasher,
	sender mailer.Sender,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		codes:  codes,
		tokens: tokens,
		hasher: hasher,
		mailer: sender,
		logger: logger,
	}
}

// Login checks the password and either issues an access token directly
// (trusted device) or mails a verification code.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	startTime := time.Now()

	email := util.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, validationError("email and password are required")
	}

	user, credentialsValid, err := s.checkCredentials(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}
	trustValid := credentialsValid && s.trustValidFor(req.TrustToken, user.ID)

	switch decideLoginPath(credentialsValid, trustValid) {
	case PathReject:
		s.logger.Info("Login rejected", zap.Duration("duration", time.Since(startTime)))
		r := reasonPasswordMismatch
		if user == nil {
			r = reasonUnknownEmail
		}
		return nil, publicError(r, nil)

	case PathBypassTwoFactor:
		access, _, err := s.tokens.Issue(token.KindAccess, subjectOf(user))
		if err != nil {
			return nil, publicError(reasonInternal, err)
		}
		pub := user.Public()
		s.logger.Info("Login via trusted device",
			zap.String("user_id", user.ID),
			zap.Duration("duration", time.Since(startTime)))
		return &LoginResult{
			RequiresCode: false,
			Token:        access,
			User:         &pub,
			Message:      "login successful",
		}, nil

	default:
		code, _, err := s.codes.Issue(ctx, user.ID)
		if err != nil {
			return nil, publicError(reasonInternal, err)
		}
		// The code stays valid when delivery fails; the next attempt replaces it.
		if err := s.mailer.SendVerificationCode(ctx, user.Email, code, s.codes.TTL()); err != nil {
			s.logger.Error("Failed to deliver verification code",
				zap.String("user_id", user.ID),
				zap.Error(err))
			return nil, publicError(reasonDeliveryFailed, err)
		}
		s.logger.Info("Verification code sent",
			zap.String("user_id", user.ID),
			zap.Duration("duration", time.Since(startTime)))
		return &LoginResult{
			RequiresCode: true,
			UserID:       user.ID,
			RememberMe:   req.RememberMe,
			Message:      "verification code sent to your email",
		}, nil
	}
}

// checkCredentials returns the user (nil when unknown) and whether password
// matches. Unknown emails still pay for one hash comparison.
func (s *AuthService) checkCredentials(ctx context.Context, email, password string) (*model.User, bool, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.DummyVerify(password)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, publicError(reasonInternal, err)
	}

	ok, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("Stored password hash unusable",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return user, false, nil
	}
	if ok && s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}
	return user, ok, nil
}

func (s *AuthService) upgradeHash(ctx context.Context, userID, password string) {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Warn("Password rehash failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		s.logger.Warn("Password rehash not stored", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Info("Password hash upgraded", zap.String("user_id", userID))
}

// trustValidFor reports whether raw is a refresh token issued to userID.
func (s *AuthService) trustValidFor(raw, userID string) bool {
	if raw == "" {
		return false
	}
	claims, err := s.tokens.VerifyKind(raw, token.KindRefresh)
	if err != nil {
		s.logger.Debug("Trust token ignored", zap.Error(err))
		return false
	}
	return claims.UserID == userID
}

// VerifyCode redeems a mailed code and issues the session credentials.
func (s *AuthService) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*VerifyCodeResult, error) {
	userID := strings.TrimSpace(req.UserID)
	code := strings.TrimSpace(req.Code)
	if userID == "" || code == "" {
		return nil, validationError("userId and code are required")
	}

	if err := s.codes.Verify(ctx, userID, code); err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return nil, publicError(reasonCodeRejected, err)
		}
		return nil, publicError(reasonInternal, err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, publicError(reasonUserVanished, err)
	}
	if err != nil {
		return nil, publicError(reasonInternal, err)
	}

	access, _, err := s.tokens.Issue(token.KindAccess, subjectOf(user))
	if err != nil {
		return nil, publicError(reasonInternal, err)
	}

	result := &VerifyCodeResult{
		Token: access,
		User:  user.Public(),
		Trust: TrustClear,
	}
	if req.RememberMe {
		refresh, expiresAt, err := s.tokens.Issue(token.KindRefresh, subjectOf(user))
		if err != nil {
			return nil, publicError(reasonInternal, err)
		}
		result.RefreshToken = refresh
		result.Trust = TrustPersist
		result.TrustExpiresAt = expiresAt
	}

	s.logger.Info("Verification code accepted",
		zap.String("user_id", user.ID),
		zap.Bool("remember_me", req.RememberMe))
	return result, nil
}

// Refresh exchanges a trust token for a new access token. The trust token is
// returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, validationError("refresh token is required")
	}

	claims, err := s.tokens.VerifyKind(refreshToken, token.KindRefresh)
	if err != nil {
		return nil, publicError(reasonTokenInvalid, err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, publicError(reasonUserVanished, err)
	}
	if err != nil {
		return nil, publicError(reasonInternal, err)
	}

	access, _, err := s.tokens.Issue(token.KindAccess, subjectOf(user))
	if err != nil {
		return nil, publicError(reasonInternal, err)
	}
	return &RefreshResult{Token: access, RefreshToken: refreshToken, User: user.Public()}, nil
}

// Logout drops the access credential and leaves the device trusted.
func (s *AuthService) Logout(context.Context) LogoutResult {
	return LogoutResult{ClearAccess: true, Trust: TrustKeep}
}

// ValidateAccess accepts access tokens only.
func (s *AuthService) ValidateAccess(raw string) (*token.Claims, error) {
	if raw == "" {
		return nil, publicError(reasonTokenInvalid, token.ErrMalformed)
	}
	claims, err := s.tokens.VerifyKind(raw, token.KindAccess)
	if err != nil {
		return nil, publicError(reasonTokenInvalid, err)
	}
	return claims, nil
}

func subjectOf(u *model.User) token.Subject {
	return token.Subject{UserID: u.ID, Email: u.Email}
}
