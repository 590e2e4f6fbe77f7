package rest

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util/tracing"
	"github.com/bwise1/safestreet/util/values"
	"github.com/golang-jwt/jwt"
	"github.com/lucsky/cuid"
)

var errTokenExpired = errors.New("token expired")

// RequestTracing handles the request tracing context
func RequestTracing(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestSource := r.Header.Get(values.HeaderRequestSource)
		if requestSource == "" {
			errM := errors.New("X-Request-Source is empty")

			writeErrorResponse(w, errM, values.BadRequestBody, errM.Error())
			return
		}

		requestID := r.Header.Get(values.HeaderRequestID)
		if requestID == "" {
			requestID = cuid.New()
		}

		tracingContext := tracing.Context{
			RequestID:     requestID,
			RequestSource: requestSource,
		}

		w.Header().Set(values.HeaderRequestID, requestID)
		ctx = context.WithValue(ctx, values.ContextTracingKey, tracingContext)
		next.ServeHTTP(w, r.WithContext(ctx))
	}

	return http.HandlerFunc(fn)
}

// RequireLogin authenticates the bearer token against a live session.
func (api *API) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.Split(r.Header.Get("Authorization"), " ")
		if len(authorization) != 2 || authorization[0] != "Bearer" {
			writeErrorResponse(w, errors.New(values.NotAuthorised), values.NotAuthorised, "not-authorized")
			return
		}
		api.authenticate(w, r, next, authorization[1])
	})
}

// RequireLoginQuery reads the token from the access_token query parameter,
// for clients that cannot set headers on a websocket upgrade.
func (api *API) RequireLoginQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")
		if token == "" {
			writeErrorResponse(w, errors.New(values.NotAuthorised), values.NotAuthorised, "not-authorized")
			return
		}
		api.authenticate(w, r, next, token)
	})
}

func (api *API) authenticate(w http.ResponseWriter, r *http.Request, next http.Handler, token string) {
	claims, err := api.verifyToken(token)
	if err != nil {
		if errors.Is(err, errTokenExpired) {
			writeErrorResponse(w, err, values.TokenExpired, "token-expired")
			return
		}
		writeErrorResponse(w, err, values.NotAuthorised, "invalid-token")
		return
	}

	dbCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	session, err := api.Accounts.GetSession(dbCtx, claims.SessionID)
	if err != nil || session.AccountID != claims.UserID {
		writeErrorResponse(w, err, values.NotAuthorised, "session-expired")
		return
	}

	account, err := api.Accounts.GetAccountByID(dbCtx, claims.UserID)
	if err != nil {
		writeErrorResponse(w, err, values.NotAuthorised, "user-not-found")
		return
	}

	ctx := context.WithValue(r.Context(), values.ContextSessionKey, model.SessionContext{
		SessionID:   session.ID,
		Account:     account,
		AuthChecked: true,
	})
	next.ServeHTTP(w, r.WithContext(ctx))
}

// RequireAdmin must run after RequireLogin.
func (api *API) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromContext(r.Context())
		if !ok || !session.Account.IsAdmin() {
			writeErrorResponse(w, errors.New("admin role required"), values.NotAllowed, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDetectorToken guards the detection callback with a shared secret.
// With no secret configured every callback is refused.
func (api *API) RequireDetectorToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := api.Config.DetectorCallbackToken
		got := r.Header.Get(values.HeaderDetectorToken)
		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			writeErrorResponse(w, errors.New("invalid detector token"), values.NotAllowed, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) (model.SessionContext, bool) {
	session, ok := ctx.Value(values.ContextSessionKey).(model.SessionContext)
	return session, ok && session.AuthChecked
}

func (api *API) verifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(api.Config.JwtSecret), nil
	})

	if ve, ok := err.(*jwt.ValidationError); ok {
		if ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errTokenExpired
		}
	}

	if err != nil || !token.Valid {
		log.Println("error verifying token", err)
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}

	if tokenType, _ := claims["typ"].(string); tokenType != "access" {
		return nil, fmt.Errorf("invalid token type")
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("invalid user id")
	}
	sessionID, ok := claims["sid"].(string)
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("invalid session id")
	}

	exp, _ := claims["exp"].(float64)
	return &TokenClaims{
		UserID:    userID,
		SessionID: sessionID,
		Type:      "access",
		Exp:       int64(exp),
	}, nil
}
