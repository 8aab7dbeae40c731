package echoapi

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/oiclass/oiclass/core"
	"github.com/oiclass/oiclass/core/user"
)

const (
	contextUserKey   = "user"
	contextClaimsKey = "claims"
	tokenQueryParam  = "token" // EventSource cannot set headers
	tokenQueryRoute  = "/api/notifications/stream"
	tokenAudience    = "oiclass"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt   int64    `json:"oriat,omitempty"`
	SessionVersion int      `json:"sv"`
	Username       string   `json:"username,omitempty"`
	Email          string   `json:"email,omitempty"`
	IsStudent      bool     `json:"is_student,omitempty"`
	IsParent       bool     `json:"is_parent,omitempty"`
	IsTeacher      bool     `json:"is_teacher,omitempty"`
	IsAdmin        bool     `json:"is_admin,omitempty"`
	Roles          []string `json:"roles,omitempty"`
}

func GetUserClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()

	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt:   oriat,
		SessionVersion: usr.SessionVersion,
		Username:       usr.Username,
		Email:          usr.Email,
		IsStudent:      usr.IsStudent(),
		IsParent:       usr.IsParent(),
		IsTeacher:      usr.IsTeacher(),
		IsAdmin:        usr.IsAdmin(),
		Roles:          usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(conf *core.Config, tokenStr string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		tokenStr,
		claims,
		func(*jwt.Token) (interface{}, error) { return []byte(conf.SecretKey), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(conf.AppName),
		jwt.WithAudience(tokenAudience),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	// query tokens end up in access logs; only the event stream needs them
	if ctx.Path() == tokenQueryRoute {
		return ctx.QueryParam(tokenQueryParam)
	}
	return ""
}

// authMiddleware loads the token's user into the context. Tokens issued before the user's
// last login or logout carry a stale session version and are rejected.
// With optional, requests without a token go through anonymously.
func authMiddleware(conf *core.Config, svc user.Service, optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			tokenStr := bearerToken(ctx)
			if tokenStr == "" {
				if optional {
					return next(ctx)
				}
				return errMissingToken
			}

			claims, err := parseToken(conf, tokenStr)
			if err != nil {
				return errInvalidToken
			}
			usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errInvalidToken
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			if usr.SessionVersion != claims.SessionVersion {
				return errSessionExpired
			}

			ctx.Set(contextClaimsKey, claims)
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return *claims, nil
	}
	return Claims{}, errUnauthorized
}

// ctxUser returns the authenticated user, or the zero User on anonymous requests.
func ctxUser(ctx echo.Context) user.User {
	usr, _ := ctx.Get(contextUserKey).(user.User)
	return usr
}

func refreshToken(ctx echo.Context, conf *core.Config) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetUserClaims(conf, ctxUser(ctx), claims.OrigIssuedAt)
	token, err := GenerateToken(conf, newClaims)
	return token, errors.Wrap(err, "generating token")
}
