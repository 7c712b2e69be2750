package api

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/letsquiz/internal/domain"
	"github.com/victornm/letsquiz/internal/errors"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderUsername  = "X-Username"
	HeaderGroups    = "X-User-Groups"
	HeaderSuperuser = "X-Superuser"
)

const identityKey = "letsquiz.identity"

func identify(c *gin.Context) {
	id := domain.Identity{
		Username: strings.TrimSpace(c.GetHeader(HeaderUsername)),
	}

	for _, g := range strings.Split(c.GetHeader(HeaderGroups), ",") {
		if g = strings.TrimSpace(g); g != "" {
			id.Groups = append(id.Groups, g)
		}
	}

	id.Superuser, _ = strconv.ParseBool(c.GetHeader(HeaderSuperuser))

	c.Set(identityKey, id)
	c.Next()
}

func identity(c *gin.Context) domain.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(domain.Identity)
	return v
}

// abort renders err as {code, message}. Internal causes are logged, never rendered.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), ErrorResponse{
		Code:    e.Code.String(),
		Message: e.Message,
	})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.InvalidArgument("invalid %s: %q", name, c.Param(name))
	}
	return id, nil
}
