package utils

import (
	"io"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// MustClose closes c and logs any error under name.
// Use for defer statements where we want to track close errors.
func MustClose(log logger.Logger, name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", name), logger.Error(err))
	}
}
