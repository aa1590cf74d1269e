// Package models defines the domain entities stored in MongoDB.
package models

import (
	"time"
)

// AccountType distinguishes password-based accounts from federated ones.
type AccountType string

const (
	AccountPassword  AccountType = "password"
	AccountFederated AccountType = "federated"
)

// Gender values accepted on profile updates.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// User represents a registered account.
type User struct {
	ID           string      `bson:"_id" json:"id"`
	FullName     string      `bson:"full_name" json:"fullName"`
	Username     string      `bson:"username" json:"username"`
	Email        string      `bson:"email" json:"email"`
	PasswordHash string      `bson:"password_hash,omitempty" json:"-"` // empty for federated accounts
	AccountType  AccountType `bson:"account_type" json:"-"`
	Avatar       string      `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Gender       string      `bson:"gender,omitempty" json:"gender,omitempty"`
	DateOfBirth  *time.Time  `bson:"dob,omitempty" json:"dob,omitempty"`
	Phone        string      `bson:"phone,omitempty" json:"phone,omitempty"`
	CreatedAt    time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updatedAt"`
}

// HasPassword returns true for accounts that authenticate with a password.
// Federated accounts skip password re-confirmation on destructive operations.
func (u *User) HasPassword() bool {
	return u.AccountType == AccountPassword
}

// PublicUser is the member-safe projection of a User, used wherever a user
// reference is joined into another document.
type PublicUser struct {
	ID       string `bson:"_id" json:"id"`
	FullName string `bson:"full_name" json:"fullName"`
	Username string `bson:"username" json:"username"`
	Avatar   string `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Email    string `bson:"email" json:"email"`
}

// Public returns the member-safe projection of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		FullName: u.FullName,
		Username: u.Username,
		Avatar:   u.Avatar,
		Email:    u.Email,
	}
}
