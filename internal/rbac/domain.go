package rbac

// Role is an office role and the permissions it grants.
type Role struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}
