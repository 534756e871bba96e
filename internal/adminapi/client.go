// Package adminapi is a small client for the advent JSON API used by the
// admin console.
package adminapi

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	baseURL *url.URL
	hc      *http.Client
}

type ClientOptions struct {
	Addr      string
	Insecure  bool
	Timeout   time.Duration
	UserAgent string
}

// APIError is a non-2xx response. Message is the envelope's error text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

func NewClient(opt ClientOptions) (*Client, error) {
	if opt.Addr == "" {
		return nil, errors.New("addr is required")
	}
	u, err := url.Parse(opt.Addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return nil, errors.New("invalid addr")
	}

	jar, _ := cookiejar.New(nil)
	t := &http.Transport{}
	if strings.EqualFold(u.Scheme, "https") {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: opt.Insecure} //nolint:gosec
	}

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	hc := &http.Client{Transport: t, Jar: jar, Timeout: timeout}
	return &Client{baseURL: u, hc: hc}, nil
}

// Viewer is the session state returned by welcome and login.
type Viewer struct {
	UID      int64  `json:"uid"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin"`
	LoggedIn bool   `json:"logged_in"`
}

func (c *Client) Welcome() (Viewer, error) {
	var v Viewer
	err := c.doJSON(http.MethodGet, "/api/welcome", nil, nil, &v)
	return v, err
}

func (c *Client) Login(user, password string) (Viewer, error) {
	req := struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}{user, password}
	var v Viewer
	err := c.doJSON(http.MethodPost, "/api/login", nil, req, &v)
	return v, err
}

func (c *Client) Logout() error {
	return c.doJSON(http.MethodGet, "/api/logout", nil, nil, nil)
}

type User struct {
	UID   int64  `json:"uid"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

func (c *Client) ListUsers() ([]User, error) {
	var out []User
	if err := c.doJSON(http.MethodGet, "/api/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddUser(name, password string) ([]User, error) {
	req := struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}{name, password}
	var out []User
	if err := c.doJSON(http.MethodPost, "/api/user", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModifyUser sets the admin flag of uid. An empty password leaves the
// password unchanged.
func (c *Client) ModifyUser(uid int64, admin bool, password string) ([]User, error) {
	req := struct {
		Admin    bool   `json:"admin"`
		Password string `json:"password"`
	}{admin, password}
	var out []User
	if err := c.doJSON(http.MethodPost, "/api/user/modify", idQuery("uid", uid), req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteUser(uid int64) ([]User, error) {
	var out []User
	if err := c.doJSON(http.MethodDelete, "/api/user", idQuery("uid", uid), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type Post struct {
	PID     int64  `json:"pid"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

func (c *Client) ListPosts() ([]Post, error) {
	var out []Post
	if err := c.doJSON(http.MethodGet, "/api/posts", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SavePost(pid int64, text string) (Post, error) {
	req := struct {
		Text string `json:"text"`
	}{text}
	var out Post
	err := c.doJSON(http.MethodPost, "/api/post", idQuery("pid", pid), req, &out)
	return out, err
}

type Comment struct {
	CID    int64   `json:"cid"`
	PID    int64   `json:"pid"`
	UID    int64   `json:"uid"`
	Name   string  `json:"name"`
	Text   string  `json:"text"`
	Answer *string `json:"answer"`
}

func (c *Client) ListComments() ([]Comment, error) {
	var out []Comment
	if err := c.doJSON(http.MethodGet, "/api/comments", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AnswerComment(cid int64, answer string) (Comment, error) {
	req := struct {
		Answer string `json:"answer"`
	}{answer}
	var out Comment
	err := c.doJSON(http.MethodPost, "/api/comment/answer", idQuery("cid", cid), req, &out)
	return out, err
}

func (c *Client) DeleteComment(cid int64) ([]Comment, error) {
	var out []Comment
	if err := c.doJSON(http.MethodDelete, "/api/comment", idQuery("cid", cid), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(method, path string, q url.Values, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	u := c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: q.Encode()})
	req, err := http.NewRequest(method, u.String(), buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&er)
		return &APIError{Status: resp.StatusCode, Message: er.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func idQuery(key string, v int64) url.Values {
	return url.Values{key: {strconv.FormatInt(v, 10)}}
}
