// Package access — проверка прав перед вызовом журнала. Сам журнал ролей не знает.
package access

import "fmt"

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleStorekeeper Role = "storekeeper"
	RoleViewer      Role = "viewer"
)

type Action string

const (
	ActionCommit  Action = "commit"
	ActionReverse Action = "reverse"
	ActionCorrect Action = "correct"
	ActionMerge   Action = "merge"
	ActionCatalog Action = "catalog"
)

type User struct {
	Name string
	Role Role
}

// Policy — какие действия доступны роли.
type Policy map[Role]map[Action]bool

// DefaultPolicy: слияние и отмена движений — только админ.
func DefaultPolicy() Policy {
	return Policy{
		RoleAdmin: {
			ActionCommit:  true,
			ActionReverse: true,
			ActionCorrect: true,
			ActionMerge:   true,
			ActionCatalog: true,
		},
		RoleStorekeeper: {
			ActionCommit:  true,
			ActionCorrect: true,
			ActionCatalog: true,
		},
		RoleViewer: {},
	}
}

func (p Policy) HasPermission(u User, a Action) bool {
	return p[u.Role][a]
}

type DeniedError struct {
	User   string
	Role   Role
	Action Action
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s (%s) may not %s", e.User, e.Role, e.Action)
}

// Require возвращает *DeniedError, если действие запрещено.
func (p Policy) Require(u User, a Action) error {
	if p.HasPermission(u, a) {
		return nil
	}
	return &DeniedError{User: u.Name, Role: u.Role, Action: a}
}
