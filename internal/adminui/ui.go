// Package adminui implements the interactive admin console using Bubble Tea.
package adminui

import (
	"fmt"
	"net/url"
	"strings"

	"advent/internal/adminapi"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// state represents the current screen in the admin console.
type state int

const (
	stateLogin state = iota
	stateUsers
	stateNewUser
	stateSetPassword
	stateComments
	stateAnswer
)

// Model holds all UI state for the admin console.
type Model struct {
	client *adminapi.Client
	addr   string

	st     state
	err    string
	status string

	user textinput.Model
	pass textinput.Model

	users   []adminapi.User
	userLst list.Model

	newName     textinput.Model
	newPassword textinput.Model

	setPw textinput.Model

	comments   []adminapi.Comment
	commentLst list.Model
	answer     textinput.Model
}

func newList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	return l
}

func newInput(prompt, placeholder string, secret bool) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	if secret {
		in.EchoMode = textinput.EchoPassword
	}
	return in
}

// New constructs a console model for client.
func New(client *adminapi.Client, addr string) Model {
	m := Model{
		client:      client,
		addr:        redactAddr(addr),
		st:          stateLogin,
		user:        newInput("User: ", "admin", false),
		pass:        newInput("Password: ", "password", true),
		userLst:     newList("Users"),
		newName:     newInput("Name: ", "username", false),
		newPassword: newInput("Password: ", "password", true),
		setPw:       newInput("New password: ", "leave empty to cancel", true),
		commentLst:  newList("Comments"),
		answer:      newInput("Answer: ", "reply shown under the comment", false),
	}
	m.user.SetValue("admin")
	m.pass.Focus()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

type errMsg string
type loggedInMsg adminapi.Viewer
type usersMsg []adminapi.User
type commentsMsg []adminapi.Comment

// Update routes messages based on the current screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.userLst.SetSize(msg.Width-4, msg.Height-8)
		m.commentLst.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	case errMsg:
		m.err = string(msg)
		return m, nil
	case loggedInMsg:
		if !msg.Admin {
			m.err = "account " + msg.Name + " is not an admin"
			return m, logoutCmd(m.client)
		}
		m.err = ""
		m.st = stateUsers
		return m, refreshUsersCmd(m.client)
	case usersMsg:
		m.setUsers(msg)
		return m, nil
	case commentsMsg:
		m.setComments(msg)
		return m, nil
	}

	switch m.st {
	case stateLogin:
		return m.updateLogin(msg)
	case stateUsers:
		return m.updateUsers(msg)
	case stateNewUser:
		return m.updateNewUser(msg)
	case stateSetPassword:
		return m.updateSetPassword(msg)
	case stateComments:
		return m.updateComments(msg)
	case stateAnswer:
		return m.updateAnswer(msg)
	default:
		return m, nil
	}
}

func (m *Model) setUsers(users []adminapi.User) {
	m.users = users
	items := make([]list.Item, 0, len(users))
	for _, u := range users {
		items = append(items, userItem(u))
	}
	m.userLst.SetItems(items)
	m.err = ""
}

func (m *Model) setComments(cs []adminapi.Comment) {
	m.comments = cs
	items := make([]list.Item, 0, len(cs))
	for _, c := range cs {
		items = append(items, commentItem(c))
	}
	m.commentLst.SetItems(items)
	m.err = ""
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.user.Focused() {
				m.user.Blur()
				m.pass.Focus()
			} else {
				m.pass.Blur()
				m.user.Focus()
			}
			return m, nil
		case "enter":
			name := strings.TrimSpace(m.user.Value())
			pw := m.pass.Value()
			m.pass.SetValue("")
			return m, loginCmd(m.client, name, pw)
		}
	}
	var cmd tea.Cmd
	if m.user.Focused() {
		m.user, cmd = m.user.Update(msg)
	} else {
		m.pass, cmd = m.pass.Update(msg)
	}
	return m, cmd
}

func (m Model) updateUsers(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "q", "ctrl+c":
			return m, tea.Sequence(logoutCmd(m.client), tea.Quit)
		case "r":
			return m, refreshUsersCmd(m.client)
		case "c":
			m.st = stateComments
			m.err = ""
			return m, refreshCommentsCmd(m.client)
		case "n":
			m.st = stateNewUser
			m.err = ""
			m.newName.SetValue("")
			m.newPassword.SetValue("")
			m.newPassword.Blur()
			m.newName.Focus()
			return m, nil
		case "a":
			u, ok := m.selectedUser()
			if !ok {
				return m, nil
			}
			return m, modifyUserCmd(m.client, u.UID, !u.Admin, "")
		case "p":
			if _, ok := m.selectedUser(); !ok {
				return m, nil
			}
			m.st = stateSetPassword
			m.err = ""
			m.setPw.SetValue("")
			m.setPw.Focus()
			return m, nil
		case "x":
			u, ok := m.selectedUser()
			if !ok {
				return m, nil
			}
			return m, deleteUserCmd(m.client, u.UID)
		}
	}
	var cmd tea.Cmd
	m.userLst, cmd = m.userLst.Update(msg)
	return m, cmd
}

func (m Model) updateNewUser(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			m.st = stateUsers
			return m, nil
		case "tab", "shift+tab":
			if m.newName.Focused() {
				m.newName.Blur()
				m.newPassword.Focus()
			} else {
				m.newPassword.Blur()
				m.newName.Focus()
			}
			return m, nil
		case "enter":
			name := strings.TrimSpace(m.newName.Value())
			pw := m.newPassword.Value()
			m.newPassword.SetValue("")
			m.st = stateUsers
			return m, addUserCmd(m.client, name, pw)
		}
	}
	var cmd tea.Cmd
	if m.newName.Focused() {
		m.newName, cmd = m.newName.Update(msg)
	} else {
		m.newPassword, cmd = m.newPassword.Update(msg)
	}
	return m, cmd
}

func (m Model) updateSetPassword(msg tea.Msg) (tea.Model, tea.Cmd) {
	u, ok := m.selectedUser()
	if !ok {
		m.st = stateUsers
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			m.st = stateUsers
			return m, nil
		case "enter":
			pw := m.setPw.Value()
			m.setPw.SetValue("")
			m.st = stateUsers
			if pw == "" {
				return m, nil
			}
			return m, modifyUserCmd(m.client, u.UID, u.Admin, pw)
		}
	}
	var cmd tea.Cmd
	m.setPw, cmd = m.setPw.Update(msg)
	return m, cmd
}

func (m Model) updateComments(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			m.st = stateUsers
			return m, refreshUsersCmd(m.client)
		case "ctrl+c":
			return m, tea.Sequence(logoutCmd(m.client), tea.Quit)
		case "r":
			return m, refreshCommentsCmd(m.client)
		case "a":
			c, ok := m.selectedComment()
			if !ok {
				return m, nil
			}
			m.st = stateAnswer
			m.err = ""
			m.answer.SetValue("")
			if c.Answer != nil {
				m.answer.SetValue(*c.Answer)
			}
			m.answer.Focus()
			return m, nil
		case "x":
			c, ok := m.selectedComment()
			if !ok {
				return m, nil
			}
			return m, deleteCommentCmd(m.client, c.CID)
		}
	}
	var cmd tea.Cmd
	m.commentLst, cmd = m.commentLst.Update(msg)
	return m, cmd
}

func (m Model) updateAnswer(msg tea.Msg) (tea.Model, tea.Cmd) {
	c, ok := m.selectedComment()
	if !ok {
		m.st = stateComments
		return m, nil
	}
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "esc":
			m.st = stateComments
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.answer.Value())
			m.st = stateComments
			return m, answerCmd(m.client, c.CID, text)
		}
	}
	var cmd tea.Cmd
	m.answer, cmd = m.answer.Update(msg)
	return m, cmd
}

// View renders the current screen as a string.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString("advent admin")
	if m.addr != "" {
		b.WriteString(" (" + m.addr + ")")
	}
	b.WriteString("\n\n")

	switch m.st {
	case stateLogin:
		b.WriteString("Login\n")
		b.WriteString(m.user.View() + "\n")
		b.WriteString(m.pass.View() + "\n\n")
		b.WriteString("tab=switch field  enter=login  esc=quit\n")
	case stateUsers:
		b.WriteString(m.userLst.View())
		b.WriteString("\n")
		b.WriteString("n=new a=toggle-admin p=set-pass x=delete c=comments r=refresh q=quit\n")
	case stateNewUser:
		b.WriteString("Create user\n\n")
		b.WriteString(m.newName.View() + "\n")
		b.WriteString(m.newPassword.View() + "\n\n")
		b.WriteString("tab=switch field  enter=save  esc=back\n")
	case stateSetPassword:
		if u, ok := m.selectedUser(); ok {
			b.WriteString("Set password for: " + u.Name + "\n\n")
		}
		b.WriteString(m.setPw.View())
		b.WriteString("\n\nenter=save  esc=back\n")
	case stateComments:
		b.WriteString(m.commentLst.View())
		b.WriteString("\n")
		b.WriteString("a=answer x=delete r=refresh esc=back\n")
	case stateAnswer:
		if c, ok := m.selectedComment(); ok {
			b.WriteString(fmt.Sprintf("Answer %s on post %d:\n%s\n\n", c.Name, c.PID, c.Text))
		}
		b.WriteString(m.answer.View())
		b.WriteString("\n\nenter=save  esc=back\n")
	}

	if m.err != "" {
		b.WriteString("\nError: " + m.err + "\n")
	}
	return b.String()
}

type userItem adminapi.User

func (u userItem) Title() string { return u.Name }
func (u userItem) Description() string {
	if u.Admin {
		return fmt.Sprintf("uid=%d admin", u.UID)
	}
	return fmt.Sprintf("uid=%d", u.UID)
}
func (u userItem) FilterValue() string { return u.Name }

type commentItem adminapi.Comment

func (c commentItem) Title() string { return fmt.Sprintf("#%d %s: %s", c.PID, c.Name, c.Text) }
func (c commentItem) Description() string {
	if c.Answer == nil {
		return "unanswered"
	}
	return "answer: " + *c.Answer
}
func (c commentItem) FilterValue() string { return c.Text }

func (m *Model) selectedUser() (adminapi.User, bool) {
	if it, ok := m.userLst.SelectedItem().(userItem); ok {
		return adminapi.User(it), true
	}
	return adminapi.User{}, false
}

func (m *Model) selectedComment() (adminapi.Comment, bool) {
	if it, ok := m.commentLst.SelectedItem().(commentItem); ok {
		return adminapi.Comment(it), true
	}
	return adminapi.Comment{}, false
}

func loginCmd(c *adminapi.Client, name, password string) tea.Cmd {
	return func() tea.Msg {
		v, err := c.Login(name, password)
		if err != nil {
			return errMsg(err.Error())
		}
		return loggedInMsg(v)
	}
}

func logoutCmd(c *adminapi.Client) tea.Cmd {
	return func() tea.Msg {
		_ = c.Logout()
		return nil
	}
}

// usersCmd wraps a call returning the updated user list.
func usersCmd(call func() ([]adminapi.User, error)) tea.Cmd {
	return func() tea.Msg {
		users, err := call()
		if err != nil {
			return errMsg(err.Error())
		}
		return usersMsg(users)
	}
}

func refreshUsersCmd(c *adminapi.Client) tea.Cmd {
	return usersCmd(c.ListUsers)
}

func addUserCmd(c *adminapi.Client, name, password string) tea.Cmd {
	return usersCmd(func() ([]adminapi.User, error) { return c.AddUser(name, password) })
}

func modifyUserCmd(c *adminapi.Client, uid int64, admin bool, password string) tea.Cmd {
	return usersCmd(func() ([]adminapi.User, error) { return c.ModifyUser(uid, admin, password) })
}

func deleteUserCmd(c *adminapi.Client, uid int64) tea.Cmd {
	return usersCmd(func() ([]adminapi.User, error) { return c.DeleteUser(uid) })
}

func commentsCmd(call func() ([]adminapi.Comment, error)) tea.Cmd {
	return func() tea.Msg {
		cs, err := call()
		if err != nil {
			return errMsg(err.Error())
		}
		return commentsMsg(cs)
	}
}

func refreshCommentsCmd(c *adminapi.Client) tea.Cmd {
	return commentsCmd(c.ListComments)
}

func answerCmd(c *adminapi.Client, cid int64, text string) tea.Cmd {
	return commentsCmd(func() ([]adminapi.Comment, error) {
		if _, err := c.AnswerComment(cid, text); err != nil {
			return nil, err
		}
		return c.ListComments()
	})
}

func deleteCommentCmd(c *adminapi.Client, cid int64) tea.Cmd {
	return commentsCmd(func() ([]adminapi.Comment, error) { return c.DeleteComment(cid) })
}

func redactAddr(addr string) string {
	u, err := url.Parse(addr)
	if err != nil {
		return ""
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host
}

// RequireInsecureByDefault reports whether addr is a loopback address,
// where setup's self-signed certificate is expected.
func RequireInsecureByDefault(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
