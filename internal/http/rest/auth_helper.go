package rest

import (
	"context"
	"errors"
	"time"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/bwise1/safestreet/util"
	"github.com/bwise1/safestreet/util/values"
	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

type TokenClaims struct {
	UserID    string `json:"sub"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	Exp       int64  `json:"exp"`
}

func (api *API) createToken(accountID, sessionID string, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID,
		"sid": sessionID,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
		"typ": "access",
	})
	return token.SignedString([]byte(api.Config.JwtSecret))
}

func (api *API) sessionTTL() time.Duration {
	ttl, err := time.ParseDuration(api.Config.JwtExpires)
	if err != nil || ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}

// CreateAccountHelper registers a new account and logs it in.
func (api *API) CreateAccountHelper(ctx context.Context, req model.RegisterRequest) (model.LoginResponse, string, string, error) {
	req.Email = util.NormalizeEmail(req.Email)

	if err := util.ValidateStruct(req); err != nil {
		return model.LoginResponse{}, values.BadRequestBody, "Invalid registration details: " + util.ValidationMessage(err), err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.LoginResponse{}, values.Error, "Error creating account", err
	}

	role := model.RoleUser
	if api.Config.IsAdminEmail(req.Email) {
		role = model.RoleAdmin
	}

	account, err := api.Accounts.CreateAccount(ctx, model.Account{
		ID:           util.NewID(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         role,
		Theme:        model.DefaultTheme(),
	})
	if errors.Is(err, model.ErrAccountExists) {
		return model.LoginResponse{}, values.Conflict, "Email already exists", err
	}
	if err != nil {
		return model.LoginResponse{}, values.Error, "Error creating account", err
	}

	resp, status, message, err := api.startSession(ctx, account)
	if err != nil {
		return resp, status, message, err
	}
	return resp, values.Created, "Account created successfully", nil
}

func (api *API) LoginHelper(ctx context.Context, req model.LoginRequest) (model.LoginResponse, string, string, error) {
	req.Email = util.NormalizeEmail(req.Email)

	if err := util.ValidateStruct(req); err != nil {
		return model.LoginResponse{}, values.BadRequestBody, "Invalid login details", err
	}

	account, err := api.Accounts.GetAccountByEmail(ctx, req.Email)
	if errors.Is(err, model.ErrAccountNotFound) {
		return model.LoginResponse{}, values.NotAuthorised, "Invalid email or password", model.ErrInvalidCredentials
	}
	if err != nil {
		return model.LoginResponse{}, values.Error, "Error looking up account", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return model.LoginResponse{}, values.NotAuthorised, "Invalid email or password", model.ErrInvalidCredentials
	}

	return api.startSession(ctx, account)
}

func (api *API) startSession(ctx context.Context, account model.Account) (model.LoginResponse, string, string, error) {
	expiresAt := time.Now().Add(api.sessionTTL())

	session, err := api.Accounts.CreateSession(ctx, account.ID, expiresAt)
	if err != nil {
		return model.LoginResponse{}, values.Error, "Failed to create session", err
	}

	token, err := api.createToken(account.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return model.LoginResponse{}, values.Error, "Failed to create token", err
	}

	return model.LoginResponse{
		Account:   account,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, values.Success, "Login successful", nil
}

// LogoutHelper ends the session and forgets its submission pipeline.
func (api *API) LogoutHelper(ctx context.Context, session model.SessionContext) (string, string, error) {
	if err := api.Accounts.DeleteSession(ctx, session.SessionID); err != nil {
		return values.Error, "Failed to end session", err
	}
	if api.Pipelines != nil {
		api.Pipelines.Drop(session.SessionID)
	}
	return values.Success, "Logged out", nil
}
