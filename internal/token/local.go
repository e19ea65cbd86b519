package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/expense-tracker/authgate/internal/config"
	"github.com/expense-tracker/authgate/internal/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ core.TokenProvider = (*LocalTokenProvider)(nil)

// LocalTokenProvider signs HS256 session credentials with a secret held in
// configuration. Verification is pure CPU and touches no shared state.
type LocalTokenProvider struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	metrics    core.Recorder
	now        func() time.Time
}

// Option configures a LocalTokenProvider
type Option func(*LocalTokenProvider)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *LocalTokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewLocalTokenProvider creates a provider from the session token settings in cfg.
func NewLocalTokenProvider(
	cfg *config.Config,
	logger *zap.Logger,
	recorder core.Recorder,
	opts ...Option,
) *LocalTokenProvider {
	p := &LocalTokenProvider{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		accessTTL:  cfg.JWTExpiration,
		refreshTTL: cfg.RefreshTokenExpiration,
		logger:     logger,
		metrics:    recorder,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalTokenProvider) generateJWT(
	subject Subject,
	category string,
	ttl time.Duration,
) (*Result, error) {
	now := p.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Email:   subject.Email,
		IsAdmin: subject.IsAdmin,
		Type:    category,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return &Result{
		TokenString: signed,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}

// Issue signs an access credential for subject.
func (p *LocalTokenProvider) Issue(subject Subject) (*Result, error) {
	return p.generateJWT(subject, core.TokenCategoryAccess, p.accessTTL)
}

// IssueRefresh signs a longer-lived credential that is only accepted by VerifyRefresh.
func (p *LocalTokenProvider) IssueRefresh(subject Subject) (*Result, error) {
	return p.generateJWT(subject, core.TokenCategoryRefresh, p.refreshTTL)
}

// Verify accepts only unexpired access credentials signed with the current secret.
func (p *LocalTokenProvider) Verify(tokenString string) (*core.TokenClaims, error) {
	return p.verify(tokenString, core.TokenCategoryAccess)
}

// VerifyRefresh accepts only unexpired refresh credentials.
func (p *LocalTokenProvider) VerifyRefresh(tokenString string) (*core.TokenClaims, error) {
	return p.verify(tokenString, core.TokenCategoryRefresh)
}

func (p *LocalTokenProvider) verify(tokenString, category string) (*core.TokenClaims, error) {
	start := time.Now()
	claims, reason := p.parse(tokenString, category)
	p.metrics.RecordTokenValidation(reason, time.Since(start))

	if reason != reasonValid {
		p.logger.Debug("session token rejected",
			zap.String("reason", reason),
			zap.String("expected_type", category),
		)
		return nil, ErrInvalidCredential
	}

	return &core.TokenClaims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		IsAdmin:   claims.IsAdmin,
		Category:  claims.Type,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *LocalTokenProvider) parse(tokenString, category string) (*Claims, string) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(p.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, reasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, reasonBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, reasonMalformed
	default:
		return nil, reasonBadClaims
	}

	if claims.Type != category {
		return nil, reasonWrongType
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, reasonBadClaims
	}
	return claims, reasonValid
}
