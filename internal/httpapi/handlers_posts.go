package httpapi

import (
	"errors"
	"net/http"

	"advent/internal/db"
)

type postDTO struct {
	PID     int64  `json:"pid"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

func toPostDTO(p db.Post) postDTO {
	return postDTO{PID: p.PID, Date: p.Date, Content: p.Content}
}

type savePostRequest struct {
	Text *string `json:"text"`
}

func (r *savePostRequest) validate() error {
	if r.Text == nil {
		return errors.New("text is required")
	}
	return nil
}

func (s *Server) handlePostsConfig(c *call) Response {
	return jsonResponse(http.StatusOK, map[string]any{
		"start": s.setup.Start,
		"days":  s.setup.Days,
	})
}

// handleGetPost returns one post once its day has come.
func (s *Server) handleGetPost(c *call) Response {
	pid, ok := queryID(c.r, "pid")
	if !ok {
		return badRequest("invalid pid")
	}
	p, found, err := s.db.GetPost(c.r.Context(), pid)
	if err != nil {
		return s.fail(c, "get post", err)
	}
	if !found {
		return badRequest("unknown post")
	}
	if !s.policy.Readable(p.Date) {
		return forbidden("post is not available yet")
	}
	return jsonResponse(http.StatusOK, toPostDTO(*p))
}

func (s *Server) handleListPosts(c *call) Response {
	posts, err := s.db.ListPosts(c.r.Context())
	if err != nil {
		return s.fail(c, "list posts", err)
	}
	out := make([]postDTO, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostDTO(p))
	}
	return jsonResponse(http.StatusOK, out)
}

func (s *Server) handleSavePost(c *call) Response {
	pid, ok := queryID(c.r, "pid")
	if !ok {
		return badRequest("invalid pid")
	}
	var req savePostRequest
	if err := decode(c, &req); err != nil {
		return s.fail(c, "save post", err)
	}
	ctx := c.r.Context()
	updated, err := s.db.SetPostContent(ctx, pid, *req.Text)
	if err != nil {
		return s.fail(c, "save post", err)
	}
	if !updated {
		return badRequest("unknown post")
	}
	p, found, err := s.db.GetPost(ctx, pid)
	if err != nil || !found {
		return s.fail(c, "save post", errors.Join(err, errors.New("post vanished after update")))
	}
	s.log.InfoContext(ctx, "post saved", "pid", pid, "by", c.uid)
	return jsonResponse(http.StatusOK, toPostDTO(*p))
}
