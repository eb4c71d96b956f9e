package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invitedomain "github.com/smallbiznis/invites/internal/invite/domain"
	obscontext "github.com/smallbiznis/invites/internal/observability/context"
)

const maxBodyBytes = 1 << 20

func (s *Server) ListInvites(c *gin.Context) {
	req := invitedomain.NewListRequest()
	req.Cursor = strings.TrimSpace(c.Query("cursor"))

	var details []ValidationError
	if limit, err := parseOptionalInt(c.Query("limit")); err != nil {
		details = append(details, ValidationError{Field: "limit", Code: "invalid_type", Message: "limit must be an integer"})
	} else if limit != nil {
		req.Limit = *limit
	}
	if reverse, err := parseOptionalBool(c.Query("reverse")); err != nil {
		details = append(details, ValidationError{Field: "reverse", Code: "invalid_type", Message: "reverse must be true or false"})
	} else if reverse != nil {
		req.Reverse = *reverse
	}
	if len(details) > 0 {
		AbortWithError(c, &ValidationErrors{Message: msgInvalidListParameters, Errors: details})
		return
	}

	resp, err := s.inviteSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, withMessage(err, msgInvalidListParameters))
		return
	}
	c.Set(obscontext.KeyInviteCount, len(resp.Items))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateInvite(c *gin.Context) {
	var req invitedomain.CreateRequest
	if err := decodeOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	opts := invitedomain.CodeOptions{Alphabet: c.Query("alphabet")}
	size, err := parseOptionalInt(c.Query("size"))
	if err != nil {
		AbortWithError(c, newValidationError(msgInvalidParameters, "size", "invalid_type", "size must be an integer"))
		return
	}
	if size != nil {
		if *size == 0 {
			AbortWithError(c, newValidationError(msgInvalidParameters, "size", "too_small", "must be at least 1"))
			return
		}
		opts.Size = *size
	}

	invite, err := s.inviteSvc.Create(c.Request.Context(), req, opts)
	if err != nil {
		AbortWithError(c, withMessage(err, msgInvalidParameters))
		return
	}
	c.Set(obscontext.KeyInviteCode, invite.Code)
	c.JSON(http.StatusCreated, invite)
}

func (s *Server) GetInvite(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		AbortWithError(c, invitedomain.ErrCodeRequired)
		return
	}

	invite, err := s.inviteSvc.Get(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invite)
}

func (s *Server) DeleteInvite(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		AbortWithError(c, invitedomain.ErrCodeRequired)
		return
	}

	if err := s.inviteSvc.Delete(c.Request.Context(), code); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	Codes *[]string `json:"codes"`
}

func (s *Server) DeleteInvites(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Query("all") == "true" {
		if err := s.inviteSvc.DeleteAll(ctx); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	var req bulkDeleteRequest
	if err := decodeOptionalJSON(c, &req); err != nil || req.Codes == nil {
		AbortWithError(c, &ValidationErrors{Message: msgInvalidBulkDelete})
		return
	}

	c.Set(obscontext.KeyInviteCount, len(*req.Codes))
	if err := s.inviteSvc.DeleteMany(ctx, *req.Codes); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Reindex(c *gin.Context) {
	count, err := s.inviteSvc.Reindex(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obscontext.KeyInviteCount, count)
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Successfully reindexed %d invites.", count),
	})
}

func (s *Server) IndexStats(c *gin.Context) {
	stats, err := s.inviteSvc.IndexStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// decodeOptionalJSON binds the request body into dst. An empty body leaves
// dst untouched.
func decodeOptionalJSON(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooBig *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &tooBig):
		return newValidationError(msgInvalidParameters, "body", "too_big", "request body is too large")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return newValidationError(msgInvalidParameters, typeErr.Field, "invalid_type",
			fmt.Sprintf("expected %s, received %s", typeErr.Type.Kind(), typeErr.Value))
	case errors.As(err, &typeErr):
		return newValidationError(msgInvalidParameters, "body", "invalid_type", "request body must be a JSON object")
	default:
		return newValidationError(msgInvalidParameters, "body", "invalid_json", "request body is not valid JSON")
	}
}
