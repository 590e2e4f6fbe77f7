package rest

import (
	"context"
	"time"

	"github.com/bwise1/safestreet/internal/model"
)

// AccountStore is the account and session service.
type AccountStore interface {
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	GetAccountByID(ctx context.Context, id string) (model.Account, error)
	UpdateTheme(ctx context.Context, accountID string, theme model.ThemeConfig) error
	UpdateAccountName(ctx context.Context, accountID, name string) (model.Account, error)
	CreateSession(ctx context.Context, accountID string, expiresAt time.Time) (model.Session, error)
	GetSession(ctx context.Context, id string) (model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}
