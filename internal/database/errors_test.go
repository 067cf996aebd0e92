package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"postgres unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped postgres unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"postgres other error", &pq.Error{Code: "23503"}, false},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other error", &mysql.MySQLError{Number: 1452}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}
