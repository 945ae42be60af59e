package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role is the access class of an identity.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// ParseRole converts a stored role string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Roles is a set of permitted roles.
type Roles []Role

// AllRoles permits any authenticated identity.
var AllRoles = Roles{RoleClient, RoleAdmin}

// Allows is the single authorization predicate used by route guards and
// handlers. An empty set allows nobody.
func (rs Roles) Allows(r Role) bool {
	for _, allowed := range rs {
		if allowed == r {
			return true
		}
	}
	return false
}

// KYCStatus tracks know-your-customer verification. Informational only.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

// ParseKYCStatus converts a stored status string into a KYCStatus.
func ParseKYCStatus(s string) (KYCStatus, error) {
	switch k := KYCStatus(strings.ToLower(strings.TrimSpace(s))); k {
	case KYCPending, KYCApproved, KYCRejected:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kyc status %q", s)
	}
}

// Identity is the profile record of a portal user.
type Identity struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Role      Role            `json:"role"`
	Balance   decimal.Decimal `json:"balance_eur"`
	KYCStatus KYCStatus       `json:"kyc_status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	LastLogin *time.Time      `json:"last_login,omitempty"`
}

// Account pairs an identity with its credential.
type Account struct {
	Identity
	PasswordHash []byte
}
