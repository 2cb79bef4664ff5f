package domain

import "time"

// Customer represents a registered account. Staff accounts manage orders.
type Customer struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	Surname      string    `json:"surname,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	PostalCode   string    `json:"postalCode,omitempty"`
	IsStaff      bool      `json:"isStaff"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Requester is the identity behind an incoming request: a logged-in account,
// an anonymous session, or both when a guest has just logged in.
type Requester struct {
	CustomerID string
	SessionID  string
	Email      string
	IsStaff    bool
}

func (r Requester) Authenticated() bool {
	return r.CustomerID != ""
}

// Owner resolves the identity used for carts and orders. Accounts take
// precedence over sessions.
func (r Requester) Owner() Owner {
	if r.CustomerID != "" {
		return Owner{CustomerID: r.CustomerID}
	}
	return Owner{SessionID: r.SessionID}
}
