package services

import (
	"github.com/apexshine/apexshine-api/models"
)

// Actor is the identity and role performing a workflow operation. Every
// engine call takes an explicit Actor so that authorization is a
// precondition check inside the operation, not a concern of the HTTP layer.
type Actor struct {
	UserID uint
	Role   string
}

// ActorFromUser builds an Actor from a user record
func ActorFromUser(user *models.User) Actor {
	return Actor{UserID: user.ID, Role: user.Role}
}

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IsStaff reports whether the actor may perform staff operations.
// Admins count as staff.
func (a Actor) IsStaff() bool {
	return a.Role == models.RoleStaff || a.Role == models.RoleAdmin
}
