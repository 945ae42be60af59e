package gotrue

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/session"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type profileRow struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	Balance   decimal.Decimal `json:"balance_eur"`
	KYCStatus string          `json:"kyc_status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	LastLogin *time.Time      `json:"last_login"`
}

func (r profileRow) toIdentity() (identity.Identity, error) {
	role, err := identity.ParseRole(r.Role)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	kyc, err := identity.ParseKYCStatus(r.KYCStatus)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return identity.Identity{
		ID:        r.ID,
		Email:     r.Email,
		Role:      role,
		Balance:   r.Balance,
		KYCStatus: kyc,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		LastLogin: r.LastLogin,
	}, nil
}

// apiError is the union of the error shapes the auth and rest endpoints use.
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error, e.ErrorCode} {
		if s != "" {
			return s
		}
	}
	return ""
}

func decodeError(resp *http.Response) error {
	var apiErr apiError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(body, &apiErr)
	detail := apiErr.text()
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusBadRequest && (apiErr.Error == "invalid_grant" || apiErr.ErrorCode == "invalid_credentials"):
		return fmt.Errorf("%w: %s", session.ErrBackendCredentials, detail)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", session.ErrBackendValidation, detail)
	default:
		return fmt.Errorf("identity backend status %d: %s", resp.StatusCode, detail)
	}
}
