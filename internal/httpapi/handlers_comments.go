package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"advent/internal/db"
)

const maxCommentRunes = 4000

type commentDTO struct {
	CID    int64   `json:"cid"`
	PID    int64   `json:"pid"`
	UID    int64   `json:"uid"`
	Name   string  `json:"name"`
	Text   string  `json:"text"`
	Answer *string `json:"answer"`
}

func toCommentDTOs(cs []db.Comment) []commentDTO {
	out := make([]commentDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, commentDTO{CID: c.CID, PID: c.PID, UID: c.UID, Name: c.Name, Text: c.Text, Answer: c.Answer})
	}
	return out
}

type addCommentRequest struct {
	Text string `json:"text"`
}

func (r *addCommentRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("text is required")
	}
	if utf8.RuneCountInString(r.Text) > maxCommentRunes {
		return errors.New("text too long")
	}
	return nil
}

type answerRequest struct {
	Answer *string `json:"answer"`
}

func (r *answerRequest) validate() error {
	if r.Answer == nil {
		return errors.New("answer is required")
	}
	if utf8.RuneCountInString(*r.Answer) > maxCommentRunes {
		return errors.New("answer too long")
	}
	return nil
}

type deleteCommentRequest struct {
	CID int64 `json:"cid"`
}

func (r *deleteCommentRequest) validate() error {
	if r.CID <= 0 {
		return errors.New("cid is required")
	}
	return nil
}

// readablePost loads pid and applies the read policy.
func (s *Server) readablePost(c *call, op string) (*db.Post, Response, bool) {
	pid, ok := queryID(c.r, "pid")
	if !ok {
		return nil, badRequest("invalid pid"), false
	}
	p, found, err := s.db.GetPost(c.r.Context(), pid)
	if err != nil {
		return nil, s.fail(c, op, err), false
	}
	if !found {
		return nil, badRequest("unknown post"), false
	}
	if !s.policy.Readable(p.Date) {
		return nil, forbidden("post is not available yet"), false
	}
	return p, Response{}, true
}

func (s *Server) postComments(c *call, pid int64) Response {
	cs, err := s.db.ListCommentsForPost(c.r.Context(), pid)
	if err != nil {
		return s.fail(c, "list comments", err)
	}
	return jsonResponse(http.StatusOK, toCommentDTOs(cs))
}

func (s *Server) allComments(c *call) Response {
	cs, err := s.db.ListComments(c.r.Context())
	if err != nil {
		return s.fail(c, "list comments", err)
	}
	return jsonResponse(http.StatusOK, toCommentDTOs(cs))
}

func (s *Server) handleGetComments(c *call) Response {
	p, resp, ok := s.readablePost(c, "list comments")
	if !ok {
		return resp
	}
	return s.postComments(c, p.PID)
}

func (s *Server) handleListComments(c *call) Response {
	return s.allComments(c)
}

// handleAddComment stores the requester's single comment on today's post.
// The lookup is advisory; the unique (pid, uid) constraint decides races.
func (s *Server) handleAddComment(c *call) Response {
	p, resp, ok := s.readablePost(c, "add comment")
	if !ok {
		return resp
	}
	if !s.policy.Open(p.Date) {
		return forbidden("post is closed for comments")
	}
	var req addCommentRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "add comment", err)
	}
	ctx := c.r.Context()
	exists, err := s.db.HasComment(ctx, p.PID, c.uid)
	if err != nil {
		return s.fail(c, "add comment", err)
	}
	if exists {
		return errorResponse(http.StatusConflict, "already commented")
	}
	if _, err := s.db.CreateComment(ctx, p.PID, c.uid, req.Text); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return errorResponse(http.StatusConflict, "already commented")
		}
		return s.fail(c, "add comment", err)
	}
	return s.postComments(c, p.PID)
}

// handleAnswerComment sets the admin answer, replacing any earlier one.
func (s *Server) handleAnswerComment(c *call) Response {
	cid, ok := queryID(c.r, "cid")
	if !ok {
		return badRequest("invalid cid")
	}
	var req answerRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "answer comment", err)
	}
	ctx := c.r.Context()
	updated, err := s.db.SetCommentAnswer(ctx, cid, *req.Answer)
	if err != nil {
		return s.fail(c, "answer comment", err)
	}
	if !updated {
		return badRequest("unknown comment")
	}
	cm, found, err := s.db.GetComment(ctx, cid)
	if err != nil || !found {
		return s.fail(c, "answer comment", errors.Join(err, errors.New("comment vanished after update")))
	}
	return jsonResponse(http.StatusOK, toCommentDTOs([]db.Comment{*cm})[0])
}

// handleDeleteComment takes the cid from the query or, failing that, a
// {"cid": N} body.
func (s *Server) handleDeleteComment(c *call) Response {
	cid, ok := queryID(c.r, "cid")
	if !ok {
		var req deleteCommentRequest
		if err := decode(c, &req); err != nil {
			return s.fail(c, "delete comment", err)
		}
		cid = req.CID
	}
	ctx := c.r.Context()
	deleted, err := s.db.DeleteComment(ctx, cid)
	if err != nil {
		return s.fail(c, "delete comment", err)
	}
	if !deleted {
		return badRequest("unknown comment")
	}
	s.log.InfoContext(ctx, "comment deleted", "cid", cid, "by", c.uid)
	return s.allComments(c)
}
