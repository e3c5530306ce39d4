package entity

import (
	"regexp"
	"time"
)

// localPartPattern limits mailbox names to lowercase ASCII letters, digits,
// dot, underscore and dash, 2 to 32 characters.
var localPartPattern = regexp.MustCompile(`^[a-z0-9._-]{2,32}$`)

// ValidLocalPart reports whether s is an acceptable mailbox local part.
func ValidLocalPart(s string) bool {
	return localPartPattern.MatchString(s)
}

// User is a registered mailbox account. Email is unique across all users;
// the durable store's unique key is the enforcement point, not a prior read.
type User struct {
	ID            string    `json:"id" bson:"id"`
	Email         string    `json:"email" bson:"email"`
	LocalPart     string    `json:"local_part" bson:"local_part"`
	Domain        string    `json:"domain" bson:"domain"`
	TokenID       string    `json:"token_id" bson:"token_id"`
	Status        string    `json:"status" bson:"status"`
	StoragePrefix string    `json:"storage_prefix" bson:"storage_prefix"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// UserStatusActive is the only status this service ever assigns.
const UserStatusActive = "active"

// UserSnapshot is the derived existence view kept in the cache under
// "user:<email>". Absence of a cache entry is never proof of non-existence.
type UserSnapshot struct {
	Exists bool    `json:"exists"`
	Status *string `json:"status"`
}
