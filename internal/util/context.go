package util

import "github.com/gin-gonic/gin"

const userIDKey = "userID"

// DefaultUserID identifies the local grader when no identity header is sent.
// The app runs against a single grader's Canvas token; identity exists for
// attribution, not access control.
const DefaultUserID = "local-user"

func SetUserID(c *gin.Context, id string) {
	c.Set(userIDKey, id)
}

func CurrentUserID(c *gin.Context) string {
	if id, ok := c.Get(userIDKey); ok {
		if s, ok := id.(string); ok && s != "" {
			return s
		}
	}
	return DefaultUserID
}
