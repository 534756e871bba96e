// Package db contains database query helpers for advent.
package db

import (
	"context"
	"database/sql"
	"errors"
)

// CreateUser inserts a new user and returns its uid.
// A taken name yields ErrConflict.
func (d *DB) CreateUser(ctx context.Context, name, passHash string, admin bool) (int64, error) {
	if name == "" || passHash == "" {
		return 0, errors.New("name and password hash are required")
	}
	var id int64
	err := withRetry(ctx, func() error {
		res, err := d.sql.ExecContext(ctx, `INSERT INTO users(name, password, admin) VALUES(?, ?, ?)`, name, passHash, boolToInt(admin))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, d.fail(ctx, "create user", err)
	}
	return id, nil
}

// GetUserByName looks up a user by name.
// The boolean indicates whether the user exists.
func (d *DB) GetUserByName(ctx context.Context, name string) (*User, bool, error) {
	return d.getUser(ctx, "get user by name", `SELECT uid, name, password, admin FROM users WHERE name=?`, name)
}

// GetUserByID looks up a user by uid.
func (d *DB) GetUserByID(ctx context.Context, uid int64) (*User, bool, error) {
	return d.getUser(ctx, "get user by id", `SELECT uid, name, password, admin FROM users WHERE uid=?`, uid)
}

func (d *DB) getUser(ctx context.Context, op, q string, arg any) (*User, bool, error) {
	var u User
	var admin int
	err := d.sql.QueryRowContext(ctx, q, arg).Scan(&u.UID, &u.Name, &u.PassHash, &admin)
	if err == nil {
		u.Admin = admin != 0
		return &u, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, d.fail(ctx, op, err)
}

// ListUsers returns all users ordered by uid.
func (d *DB) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT uid, name, password, admin FROM users ORDER BY uid ASC`)
	if err != nil {
		return nil, d.fail(ctx, "list users", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var admin int
		if err := rows.Scan(&u.UID, &u.Name, &u.PassHash, &admin); err != nil {
			return nil, d.fail(ctx, "list users", err)
		}
		u.Admin = admin != 0
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, d.fail(ctx, "list users", err)
	}
	return out, nil
}

// UpdateUser sets the admin flag and, when passHash is non-empty, the
// password hash. The boolean reports whether the user exists.
func (d *DB) UpdateUser(ctx context.Context, uid int64, admin bool, passHash string) (bool, error) {
	if uid <= 0 {
		return false, errors.New("invalid user id")
	}
	var n int64
	err := withRetry(ctx, func() error {
		var res sql.Result
		var err error
		if passHash == "" {
			res, err = d.sql.ExecContext(ctx, `UPDATE users SET admin=? WHERE uid=?`, boolToInt(admin), uid)
		} else {
			res, err = d.sql.ExecContext(ctx, `UPDATE users SET admin=?, password=? WHERE uid=?`, boolToInt(admin), passHash, uid)
		}
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, d.fail(ctx, "update user", err)
	}
	return n > 0, nil
}

// SetUserPasswordHash updates a user's password hash.
func (d *DB) SetUserPasswordHash(ctx context.Context, uid int64, passHash string) error {
	if uid <= 0 {
		return errors.New("invalid user id")
	}
	if passHash == "" {
		return errors.New("password hash is required")
	}
	err := withRetry(ctx, func() error {
		_, err := d.sql.ExecContext(ctx, `UPDATE users SET password=? WHERE uid=?`, passHash, uid)
		return err
	})
	return d.fail(ctx, "set password", err)
}

// DeleteUser removes a user and their comments in one transaction.
// The boolean reports whether the user existed.
func (d *DB) DeleteUser(ctx context.Context, uid int64) (bool, error) {
	if uid <= 0 {
		return false, errors.New("invalid user id")
	}
	var n int64
	err := withRetry(ctx, func() error {
		tx, err := d.sql.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE uid=?`, uid); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE uid=?`, uid)
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, d.fail(ctx, "delete user", err)
	}
	return n > 0, nil
}

// CreatePost inserts an empty post for day. The boolean is false when a
// post for that day already exists.
func (d *DB) CreatePost(ctx context.Context, day string) (int64, bool, error) {
	var id int64
	err := withRetry(ctx, func() error {
		res, err := d.sql.ExecContext(ctx, `INSERT INTO posts(date, content) VALUES(?, '')`, day)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if isUniqueViolation(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, d.fail(ctx, "create post", err)
	}
	return id, true, nil
}

// GetPost looks up a post by pid.
func (d *DB) GetPost(ctx context.Context, pid int64) (*Post, bool, error) {
	var p Post
	err := d.sql.QueryRowContext(ctx, `SELECT pid, date, content FROM posts WHERE pid=?`, pid).Scan(&p.PID, &p.Date, &p.Content)
	if err == nil {
		return &p, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, d.fail(ctx, "get post", err)
}

// ListPosts returns all posts ordered by date.
func (d *DB) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT pid, date, content FROM posts ORDER BY date ASC`)
	if err != nil {
		return nil, d.fail(ctx, "list posts", err)
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.PID, &p.Date, &p.Content); err != nil {
			return nil, d.fail(ctx, "list posts", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, d.fail(ctx, "list posts", err)
	}
	return out, nil
}

// SetPostContent overwrites a post's content.
// The boolean reports whether the post exists.
func (d *DB) SetPostContent(ctx context.Context, pid int64, content string) (bool, error) {
	var n int64
	err := withRetry(ctx, func() error {
		res, err := d.sql.ExecContext(ctx, `UPDATE posts SET content=? WHERE pid=?`, content, pid)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, d.fail(ctx, "set post content", err)
	}
	return n > 0, nil
}

// CreateComment inserts a comment. A second comment by the same user on the
// same post yields ErrConflict from the unique (pid, uid) constraint.
func (d *DB) CreateComment(ctx context.Context, pid, uid int64, text string) (int64, error) {
	var id int64
	err := withRetry(ctx, func() error {
		res, err := d.sql.ExecContext(ctx, `INSERT INTO comments(pid, uid, text) VALUES(?, ?, ?)`, pid, uid, text)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, d.fail(ctx, "create comment", err)
	}
	return id, nil
}

const commentCols = `c.cid, c.pid, c.uid, COALESCE(u.name, ''), c.text, c.answer FROM comments c LEFT JOIN users u ON u.uid = c.uid`

// HasComment reports whether uid has already commented on pid.
func (d *DB) HasComment(ctx context.Context, pid, uid int64) (bool, error) {
	var cid int64
	err := d.sql.QueryRowContext(ctx, `SELECT cid FROM comments WHERE pid=? AND uid=?`, pid, uid).Scan(&cid)
	if err == nil {
		return true, nil
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	return false, d.fail(ctx, "has comment", err)
}

// GetComment looks up a comment by cid.
func (d *DB) GetComment(ctx context.Context, cid int64) (*Comment, bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+commentCols+` WHERE c.cid=?`, cid)
	c, err := scanComment(row)
	if err == nil {
		return c, true, nil
	}
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	return nil, false, d.fail(ctx, "get comment", err)
}

// ListCommentsForPost returns a post's comments, newest first.
func (d *DB) ListCommentsForPost(ctx context.Context, pid int64) ([]Comment, error) {
	return d.listComments(ctx, "list comments for post", `SELECT `+commentCols+` WHERE c.pid=? ORDER BY c.cid DESC`, pid)
}

// ListComments returns every comment ordered by post, newest first.
func (d *DB) ListComments(ctx context.Context) ([]Comment, error) {
	return d.listComments(ctx, "list comments", `SELECT `+commentCols+` ORDER BY c.pid ASC, c.cid DESC`)
}

func (d *DB) listComments(ctx context.Context, op, q string, args ...any) ([]Comment, error) {
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, d.fail(ctx, op, err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, d.fail(ctx, op, err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, d.fail(ctx, op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComment(s scanner) (*Comment, error) {
	var c Comment
	var answer sql.NullString
	if err := s.Scan(&c.CID, &c.PID, &c.UID, &c.Name, &c.Text, &answer); err != nil {
		return nil, err
	}
	if answer.Valid {
		a := answer.String
		c.Answer = &a
	}
	return &c, nil
}

// SetCommentAnswer stores the admin answer for a comment.
// The boolean reports whether the comment exists.
func (d *DB) SetCommentAnswer(ctx context.Context, cid int64, answer string) (bool, error) {
	var n int64
	err := withRetry(ctx, func() error {
		res, err := d.sql.ExecContext(ctx, `UPDATE comments SET answer=? WHERE cid=?`, answer, cid)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, d.fail(ctx, "set comment answer", err)
	}
	return n > 0, nil
}

// DeleteComment removes a comment by cid.
// The boolean reports whether the comment existed.
func (d *DB) DeleteComment(ctx context.Context, cid int64) (bool, error) {
	var n int64
	err := withRetry(ctx, func() error {
		res, err := d.sql.ExecContext(ctx, `DELETE FROM comments WHERE cid=?`, cid)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, d.fail(ctx, "delete comment", err)
	}
	return n > 0, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
