package httputil

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// DefaultLimit is the page size used when the limit parameter is absent.
	DefaultLimit = 50
	// MaxLimit caps the limit parameter.
	MaxLimit = 500
)

// ParseSequenceRange parses the optional from_seq and to_seq query parameters.
// Absent parameters are returned as zero, meaning unbounded.
func ParseSequenceRange(c *gin.Context) (fromSeq, toSeq uint64, err error) {
	fromSeq, err = parseSequence(c, "from_seq")
	if err != nil {
		return 0, 0, err
	}
	toSeq, err = parseSequence(c, "to_seq")
	if err != nil {
		return 0, 0, err
	}
	if toSeq > 0 && fromSeq > toSeq {
		return 0, 0, fmt.Errorf("invalid sequence range: from_seq must not exceed to_seq")
	}
	return fromSeq, toSeq, nil
}

// ParseLimit parses the limit query parameter (default 50, between 1 and 500).
func ParseLimit(c *gin.Context) (int, error) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil || limit < 1 || limit > MaxLimit {
		return 0, fmt.Errorf("invalid limit parameter: must be between 1 and %d", MaxLimit)
	}
	return limit, nil
}

func parseSequence(c *gin.Context, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: must be a non-negative integer", name)
	}
	return seq, nil
}
