package helpers

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleCustomer   = "customer"
)

type CustomClaims struct {
	Role        string `json:"role"`
	Email       string `json:"email"`
	EmpID       int64  `json:"emp_id,omitempty"`
	AppMetadata struct {
		Provider string   `json:"provider"`
		Roles    []string `json:"roles,omitempty"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

type EnhancedClaims struct {
	*CustomClaims
	Role   string `json:"role"`
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	EmpID  int64  `json:"emp_id,omitempty"`
}

// Enhance resolves the effective role. app_metadata roles win over the
// top-level claim, which identity providers often set to "authenticated".
func Enhance(claims *CustomClaims) *EnhancedClaims {
	role := claims.Role
	for _, r := range claims.AppMetadata.Roles {
		if r == RoleAdmin || r == RoleTechnician || r == RoleCustomer {
			role = r
			break
		}
	}
	return &EnhancedClaims{
		CustomClaims: claims,
		Role:         role,
		UserID:       claims.Subject,
		Email:        claims.Email,
		EmpID:        claims.EmpID,
	}
}

func (ec *EnhancedClaims) IsAdmin() bool {
	return ec.Role == RoleAdmin
}

func (ec *EnhancedClaims) IsTechnician() bool {
	return ec.Role == RoleTechnician
}

func (ec *EnhancedClaims) HasRole(role string) bool {
	return ec.Role == role
}

// CanActAsEmployee reports whether the caller may read or change empID's
// records.
func (ec *EnhancedClaims) CanActAsEmployee(empID int64) bool {
	return ec.IsAdmin() || (ec.IsTechnician() && ec.EmpID == empID)
}

func (ec *EnhancedClaims) GetSafeRole() string {
	if ec.Role == "" {
		return "guest"
	}
	return ec.Role
}

// Actor names the caller in status histories and events.
func (ec *EnhancedClaims) Actor() string {
	if ec.EmpID != 0 {
		return ec.GetSafeRole() + ":" + strconv.FormatInt(ec.EmpID, 10)
	}
	if ec.UserID != "" {
		return ec.GetSafeRole() + ":" + ec.UserID
	}
	return ec.GetSafeRole()
}
