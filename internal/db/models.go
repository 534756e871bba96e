// Package db defines persistence models for advent.
package db

// User is an account. The account named "admin" is protected.
type User struct {
	UID      int64
	Name     string
	PassHash string
	Admin    bool
}

// Post is the entry for one calendar day. Date is YYYY-MM-DD.
type Post struct {
	PID     int64
	Date    string
	Content string
}

// Comment is a user's single comment on a post with an optional admin answer.
// Name is the author's name, joined from users.
type Comment struct {
	CID    int64
	PID    int64
	UID    int64
	Name   string
	Text   string
	Answer *string
}
