package repository_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rhinocodelab/idms-v3/pkg/repository"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
)

func TestMapError(t *testing.T) {
	passthrough := errors.New("some other error")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, errNotFound},
		{"wrapped no rows", fmt.Errorf("find: %w", sql.ErrNoRows), errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errDuplicate},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, nil},
		{"passthrough", passthrough, passthrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repository.MapError(tt.err, errNotFound, errDuplicate)
			if tt.want == nil && tt.err != nil {
				if got != tt.err {
					t.Errorf("MapError = %v, want unchanged %v", got, tt.err)
				}
				return
			}
			if !errors.Is(got, tt.want) && got != tt.want {
				t.Errorf("MapError = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "workflows_source_path_active_idx",
	})

	if !repository.IsUniqueViolation(err, "") {
		t.Error("expected match without constraint filter")
	}
	if !repository.IsUniqueViolation(err, "workflows_source_path_active_idx") {
		t.Error("expected match on constraint name")
	}
	if repository.IsUniqueViolation(err, "queue_items_workflow_checksum_key") {
		t.Error("unexpected match on different constraint")
	}
	if repository.IsUniqueViolation(errors.New("plain"), "") {
		t.Error("unexpected match on non-pg error")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !repository.IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected foreign key match")
	}
	if repository.IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("unexpected match on unique violation")
	}
}
