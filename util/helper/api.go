package helper_util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetPageSize reads the pageSize query parameter.
func GetPageSize(c *gin.Context, def, max int) (int, error) {
	size, err := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(def)))
	if err != nil {
		return 0, fmt.Errorf("invalid pageSize: %w", err)
	}
	if size <= 0 || size > max {
		return 0, fmt.Errorf("pageSize must be between 1 and %d", max)
	}
	return size, nil
}

// GetListParam splits a comma separated query parameter, also accepting the
// parameter repeated.
func GetListParam(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
