package types

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// UserID identifies a user record. Relational backends assign an integer
// surrogate key; the document backend assigns an opaque string. The zero
// value means "not yet assigned".
type UserID struct {
	seq    int64
	opaque string
}

// SeqID returns the ID of a relational row.
func SeqID(n int64) UserID { return UserID{seq: n} }

// OpaqueID returns the ID of a document.
func OpaqueID(s string) UserID { return UserID{opaque: s} }

// Int64 returns the integer key and true when the ID came from a relational
// backend.
func (id UserID) Int64() (int64, bool) {
	if id.opaque != "" || id.seq == 0 {
		return 0, false
	}
	return id.seq, true
}

// IsZero reports whether no ID has been assigned.
func (id UserID) IsZero() bool { return id.seq == 0 && id.opaque == "" }

func (id UserID) String() string {
	if id.opaque != "" {
		return id.opaque
	}
	if id.seq == 0 {
		return ""
	}
	return strconv.FormatInt(id.seq, 10)
}

// MarshalJSON renders relational IDs as numbers and document IDs as strings.
func (id UserID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int64(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	if id.opaque == "" {
		return []byte("null"), nil
	}
	return json.Marshal(id.opaque)
}

// UnmarshalJSON accepts either form produced by MarshalJSON.
func (id *UserID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = UserID{}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = SeqID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = OpaqueID(s)
	return nil
}

// User is the backend-agnostic user record. Email and Username are unique
// across all records of a backend.
type User struct {
	ID             UserID    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	FullName       string    `json:"full_name,omitempty"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser returns an active, non-superuser record ready for Insert.
func NewUser(email, username, hashedPassword, fullName string) *User {
	return &User{
		Email:          email,
		Username:       username,
		HashedPassword: hashedPassword,
		FullName:       fullName,
		IsActive:       true,
	}
}

// Validate checks the fields every backend requires before an insert.
func (u *User) Validate() error {
	if u == nil {
		return ErrInvalidData
	}
	if u.Email == "" {
		return ErrEmailRequired
	}
	if u.Username == "" {
		return ErrUsernameRequired
	}
	if u.HashedPassword == "" {
		return ErrPasswordRequired
	}
	return nil
}

// UserField names a unique user attribute that may be used for lookups.
type UserField string

// Unique lookup fields. The values double as column and document key names.
const (
	FieldUsername UserField = "username"
	FieldEmail    UserField = "email"
)

// Valid reports whether f is one of the unique lookup fields.
func (f UserField) Valid() bool {
	return f == FieldUsername || f == FieldEmail
}

// Record validation errors.
var (
	ErrInvalidData      = errors.New("invalid user data")
	ErrInvalidField     = errors.New("field is not a unique user attribute")
	ErrEmailRequired    = errors.New("email must not be empty")
	ErrUsernameRequired = errors.New("username must not be empty")
	ErrPasswordRequired = errors.New("password hash must not be empty")
)
