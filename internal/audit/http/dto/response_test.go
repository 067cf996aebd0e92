package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"

	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

func TestMapEntriesToResponse(t *testing.T) {
	entries := []*auditDomain.Entry{{Sequence: 4}, {Sequence: 5}}

	t.Run("Success_FullPage", func(t *testing.T) {
		response := MapEntriesToResponse("tenant-a", entries, 2)
		assert.Equal(t, uint64(6), response.NextFromSeq)
	})

	t.Run("Success_LastPage", func(t *testing.T) {
		response := MapEntriesToResponse("tenant-a", entries, 10)
		assert.Zero(t, response.NextFromSeq)
		assert.Len(t, response.Entries, 2)
	})

	t.Run("Success_Empty", func(t *testing.T) {
		response := MapEntriesToResponse("tenant-a", nil, 10)
		assert.NotNil(t, response.Entries)
		assert.Zero(t, response.NextFromSeq)
	})
}
