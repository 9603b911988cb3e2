package types

// Credentials are the portal login fields.
type Credentials struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Entity is a handle to a profile opened in the portal.
type Entity struct {
	Name string
	URL  string // profile page address, when known
}

// Form is a handle to an open transaction form of an entity.
type Form struct {
	Entity Entity
}
