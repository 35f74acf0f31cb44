package models

const RoleAdmin = "admin"

// Identity is the verified caller attached to every authenticated request.
type Identity struct {
	UserID int
	Email  string
	Role   string
	// Token is the raw Authorization header, forwarded to the product service.
	Token string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
