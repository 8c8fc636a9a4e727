package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"workflow-dashboard/internal/token"
)

var sixDigits = regexp.MustCompile(`^\d{6}$`)

func TestDecideLoginPath(t *testing.T) {
	assert.Equal(t, PathReject, decideLoginPath(false, false))
	assert.Equal(t, PathReject, decideLoginPath(false, true))
	assert.Equal(t, PathRequireTwoFactor, decideLoginPath(true, false))
	assert.Equal(t, PathBypassTwoFactor, decideLoginPath(true, true))
}

func TestLoginRequiresCodeWithoutTrust(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()

	res, err := auth.Login(context.Background(), LoginRequest{Email: "A@X.com ", Password: "secret1", RememberMe: true})
	require.NoError(t, err)
	assert.True(t, res.RequiresCode)
	assert.Equal(t, u.ID, res.UserID)
	assert.True(t, res.RememberMe)
	assert.Empty(t, res.Token)
	assert.Nil(t, res.User)

	sent := f.mailer.last(t)
	assert.Equal(t, "a@x.com", sent.To)
	assert.Regexp(t, sixDigits, sent.Code)
	assert.NotContains(t, res.Message, sent.Code)
	assert.Equal(t, 1, f.liveCodes(t, u.ID))
}

func TestLoginRepeatedKeepsOneLiveCode(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()

	for i := 0; i < 4; i++ {
		_, err := auth.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "secret1"})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	assert.Equal(t, 1, f.liveCodes(t, u.ID))
	assert.Equal(t, 4, f.mailer.count())

	// Only the latest code is accepted.
	latest := f.mailer.last(t).Code
	first := f.mailer.sent[0].Code
	if first != latest {
		_, err := auth.VerifyCode(context.Background(), VerifyCodeRequest{UserID: u.ID, Code: first})
		requireKind(t, err, KindAuthentication)
	}
	_, err := auth.VerifyCode(context.Background(), VerifyCodeRequest{UserID: u.ID, Code: latest})
	require.NoError(t, err)
}

func TestLoginInvalidCredentialsLookAlike(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()

	_, errWrong := auth.Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "nope"})
	_, errUnknown := auth.Login(context.Background(), LoginRequest{Email: "b@x.com", Password: "secret1"})

	wrong := requireKind(t, errWrong, KindAuthentication)
	unknown := requireKind(t, errUnknown, KindAuthentication)
	assert.Equal(t, wrong.Message, unknown.Message)
	assert.Equal(t, 0, f.mailer.count())
}

func TestLoginMissingFields(t *testing.T) {
	f := newFixture(t)
	auth := f.factory.AuthService()

	_, err := auth.Login(context.Background(), LoginRequest{Email: "a@x.com"})
	requireKind(t, err, KindValidation)
	_, err = auth.Login(context.Background(), LoginRequest{Password: "secret1"})
	requireKind(t, err, KindValidation)
}

func TestLoginDeliveryFailureKeepsCode(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	f.mailer.err = errors.New("smtp unavailable")

	_, err := f.factory.AuthService().Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "secret1"})
	requireKind(t, err, KindDelivery)
	assert.Equal(t, 1, f.liveCodes(t, u.ID))
}

func TestVerifyCodeRememberMeIssuesTrust(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()
	ctx := context.Background()

	_, err := auth.Login(ctx, LoginRequest{Email: "a@x.com", Password: "secret1", RememberMe: true})
	require.NoError(t, err)
	code := f.mailer.last(t).Code

	res, err := auth.VerifyCode(ctx, VerifyCodeRequest{UserID: u.ID, Code: code, RememberMe: true})
	require.NoError(t, err)
	assert.Equal(t, TrustPersist, res.Trust)
	assert.WithinDuration(t, f.clock.Now().Add(30*24*time.Hour), res.TrustExpiresAt, 0)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, "a@x.com", res.User.Email)

	access, err := f.tokens.VerifyKind(res.Token, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, u.ID, access.UserID)
	assert.WithinDuration(t, f.clock.Now().Add(time.Hour), access.ExpiresAt.Time, 0)

	refresh, err := f.tokens.VerifyKind(res.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, u.ID, refresh.UserID)

	// A consumed code cannot be redeemed again.
	_, err = auth.VerifyCode(ctx, VerifyCodeRequest{UserID: u.ID, Code: code, RememberMe: true})
	requireKind(t, err, KindAuthentication)
}

func TestVerifyCodeWithoutRememberMeClearsTrust(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()
	ctx := context.Background()

	_, err := auth.Login(ctx, LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	res, err := auth.VerifyCode(ctx, VerifyCodeRequest{UserID: u.ID, Code: f.mailer.last(t).Code})
	require.NoError(t, err)
	assert.Equal(t, TrustClear, res.Trust)
	assert.Empty(t, res.RefreshToken)
	assert.NotEmpty(t, res.Token)
}

func TestVerifyCodeExpiredAfterTenMinutes(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()
	ctx := context.Background()

	_, err := auth.Login(ctx, LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	code := f.mailer.last(t).Code

	f.clock.Advance(11 * time.Minute)
	_, err = auth.VerifyCode(ctx, VerifyCodeRequest{UserID: u.ID, Code: code})
	se := requireKind(t, err, KindAuthentication)
	assert.Equal(t, "invalid or expired code", se.Message)
}

func TestVerifyCodeValidation(t *testing.T) {
	f := newFixture(t)
	auth := f.factory.AuthService()

	_, err := auth.VerifyCode(context.Background(), VerifyCodeRequest{Code: "123456"})
	requireKind(t, err, KindValidation)
	_, err = auth.VerifyCode(context.Background(), VerifyCodeRequest{UserID: "u"})
	requireKind(t, err, KindValidation)
	_, err = auth.VerifyCode(context.Background(), VerifyCodeRequest{UserID: "u", Code: "12ab56"})
	requireKind(t, err, KindAuthentication)
}

// login → verify with rememberMe → logout → login again skips the code.
func TestTrustedDeviceBypassesCode(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()
	ctx := context.Background()

	_, err := auth.Login(ctx, LoginRequest{Email: "a@x.com", Password: "secret1", RememberMe: true})
	require.NoError(t, err)
	verified, err := auth.VerifyCode(ctx, VerifyCodeRequest{UserID: u.ID, Code: f.mailer.last(t).Code, RememberMe: true})
	require.NoError(t, err)

	out := auth.Logout(ctx)
	assert.True(t, out.ClearAccess)
	assert.Equal(t, TrustKeep, out.Trust)

	f.clock.Advance(24 * time.Hour)
	sentBefore := f.mailer.count()
	codesBefore, err := f.store.ListVerificationCodes(ctx, u.ID)
	require.NoError(t, err)

	res, err := auth.Login(ctx, LoginRequest{Email: "a@x.com", Password: "secret1", TrustToken: verified.RefreshToken})
	require.NoError(t, err)
	assert.False(t, res.RequiresCode)
	require.NotNil(t, res.User)
	assert.Equal(t, u.ID, res.User.ID)
	_, err = f.tokens.VerifyKind(res.Token, token.KindAccess)
	require.NoError(t, err)

	codesAfter, err := f.store.ListVerificationCodes(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, sentBefore, f.mailer.count(), "no code may be mailed")
	assert.Len(t, codesAfter, len(codesBefore), "no code may be created")
}

func TestTrustTokenDoesNotBypassPassword(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	trust, _, err := f.tokens.Issue(token.KindRefresh, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)

	_, err = f.factory.AuthService().Login(context.Background(),
		LoginRequest{Email: "a@x.com", Password: "wrong", TrustToken: trust})
	requireKind(t, err, KindAuthentication)
}

func TestTrustTokenOfAnotherUserRequiresCode(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "a@x.com", "secret1")
	other := f.addUser(t, "b@x.com", "secret2")
	trust, _, err := f.tokens.Issue(token.KindRefresh, token.Subject{UserID: other.ID, Email: other.Email})
	require.NoError(t, err)

	res, err := f.factory.AuthService().Login(context.Background(),
		LoginRequest{Email: "a@x.com", Password: "secret1", TrustToken: trust})
	require.NoError(t, err)
	assert.True(t, res.RequiresCode)
}

func TestAccessTokenIsNotATrustToken(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	access, _, err := f.tokens.Issue(token.KindAccess, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)

	res, err := f.factory.AuthService().Login(context.Background(),
		LoginRequest{Email: "a@x.com", Password: "secret1", TrustToken: access})
	require.NoError(t, err)
	assert.True(t, res.RequiresCode)
}

func TestExpiredTrustTokenRequiresCode(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	trust, _, err := f.tokens.Issue(token.KindRefresh, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	res, err := f.factory.AuthService().Login(context.Background(),
		LoginRequest{Email: "a@x.com", Password: "secret1", TrustToken: trust})
	require.NoError(t, err)
	assert.True(t, res.RequiresCode)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()
	ctx := context.Background()

	trust, _, err := f.tokens.Issue(token.KindRefresh, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)

	res, err := auth.Refresh(ctx, trust)
	require.NoError(t, err)
	assert.Equal(t, trust, res.RefreshToken)
	assert.Equal(t, u.ID, res.User.ID)
	_, err = f.tokens.VerifyKind(res.Token, token.KindAccess)
	require.NoError(t, err)

	_, err = auth.Refresh(ctx, "")
	requireKind(t, err, KindValidation)

	access, _, err := f.tokens.Issue(token.KindAccess, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)
	_, err = auth.Refresh(ctx, access)
	se := requireKind(t, err, KindAuthentication)
	assert.Equal(t, "invalid token", se.Message)

	_, err = auth.Refresh(ctx, "not.a.token")
	requireKind(t, err, KindAuthentication)

	ghost, _, err := f.tokens.Issue(token.KindRefresh, token.Subject{UserID: "ghost", Email: "g@x.com"})
	require.NoError(t, err)
	_, err = auth.Refresh(ctx, ghost)
	requireKind(t, err, KindNotFound)
}

func TestValidateAccess(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "secret1")
	auth := f.factory.AuthService()

	access, _, err := f.tokens.Issue(token.KindAccess, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)
	refresh, _, err := f.tokens.Issue(token.KindRefresh, token.Subject{UserID: u.ID, Email: u.Email})
	require.NoError(t, err)

	claims, err := auth.ValidateAccess(access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, err = auth.ValidateAccess(refresh)
	requireKind(t, err, KindAuthentication)
	_, err = auth.ValidateAccess("")
	requireKind(t, err, KindAuthentication)

	f.clock.Advance(time.Hour + time.Second)
	_, err = auth.ValidateAccess(access)
	requireKind(t, err, KindAuthentication)
}

func TestLoginUpgradesBcryptHash(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "a@x.com", "placeholder")
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdatePasswordHash(context.Background(), u.ID, string(legacy)))

	_, err = f.factory.AuthService().Login(context.Background(), LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	stored, err := f.store.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.PasswordHash, "$argon2id$")
}
