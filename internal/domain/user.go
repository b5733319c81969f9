package domain

// User represents a registered customer.
// Password is kept in plain text; it is only ever compared, never emitted.
type User struct {
	ID       int64  `json:"id" bson:"_id"`
	Name     string `json:"name" bson:"name"`
	Email    string `json:"email" bson:"email"`
	Password string `json:"password" bson:"password"`
}

// Profile is the outward view of a user sent to clients
type Profile struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Profile returns the user without the password
func (u *User) Profile() Profile {
	return Profile{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}

// Matches reports whether email and password are an exact match
func (u *User) Matches(email, password string) bool {
	return u.Email == email && u.Password == password
}

// Clone returns a copy of the user
func (u *User) Clone() *User {
	c := *u
	return &c
}

// Registration is the payload of a register event
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Credentials is the payload of a login event
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
