package domain

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) Staff() bool { return a.Role == "ADMIN" || a.Role == "OWNER" }

// CanManage reports whether the actor may act on a resource owned by userID.
func (a Actor) CanManage(userID string) bool {
	return a.UserID == userID || a.Staff()
}
