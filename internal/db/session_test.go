package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"indexer-engine/internal/scalar"
)

func TestBuildInsert(t *testing.T) {
	stmt, err := buildInsert("block_header", []scalar.Value{
		{Tag: scalar.TagBlockID, Payload: make([]byte, 32)},
		{Tag: scalar.TagUInt4, Payload: uint32(7)},
	})
	if err != nil {
		t.Fatalf("buildInsert failed: %v", err)
	}
	if !strings.HasPrefix(stmt, "INSERT INTO block_header VALUES (") {
		t.Fatalf("unexpected statement: %q", stmt)
	}
	if !strings.HasSuffix(stmt, ",7);") {
		t.Fatalf("unexpected statement suffix: %q", stmt)
	}
}

func TestBuildInsertPropagatesEncodeError(t *testing.T) {
	_, err := buildInsert("t", []scalar.Value{
		{Tag: scalar.TagInt4, Payload: "not an int"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	var notPg error = errors.New("boom")
	if IsUniqueViolation(notPg) {
		t.Fatal("plain error must not classify as unique violation")
	}

	pgErr := &pgconn.PgError{Code: "23505"}
	if !IsUniqueViolation(pgErr) {
		t.Fatal("expected 23505 to classify as unique violation")
	}

	other := &pgconn.PgError{Code: "42601"}
	if IsUniqueViolation(other) {
		t.Fatal("non-23505 code must not classify as unique violation")
	}
}

func TestTableMappingDoesNotExistError(t *testing.T) {
	err := TableMappingDoesNotExistError{TypeID: 42}
	if err.Error() != "db: TableMappingDoesNotExist(42)" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
