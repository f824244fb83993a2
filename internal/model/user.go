package model

import "time"

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleInternal   Role = "internal"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleInternal:
		return true
	}
	return false
}

// Page is one of the fixed dashboard pages a role may be granted.
type Page string

const (
	PageDashboard   Page = "dashboard"
	PageContacts    Page = "contacts"
	PageCampaigns   Page = "campaigns"
	PageTemplates   Page = "templates"
	PageEmailSender Page = "email_sender"
	PageUsers       Page = "users"
)

var AllPages = []Page{PageDashboard, PageContacts, PageCampaigns, PageTemplates, PageEmailSender, PageUsers}

func (p Page) Valid() bool {
	for _, v := range AllPages {
		if v == p {
			return true
		}
	}
	return false
}

// AppUser mirrors one identity of the external auth provider.
// A nil Role means the account has not been provisioned yet.
type AppUser struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName *string   `db:"display_name" json:"display_name,omitempty"`
	AvatarURL   *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	Role        *Role     `db:"role" json:"role"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

func (u AppUser) HasRole(r Role) bool {
	return u.Role != nil && *u.Role == r
}

type RolePermission struct {
	Role Role `db:"role" json:"role"`
	Page Page `db:"page" json:"page"`
}
