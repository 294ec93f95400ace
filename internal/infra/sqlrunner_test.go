package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingDB struct {
	queries []string
}

func (d *recordingDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	d.queries = append(d.queries, query)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (d *recordingDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	d.queries = append(d.queries, query)
	return errorRow{err: pgx.ErrNoRows}
}

func (d *recordingDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	d.queries = append(d.queries, query)
	return nil, errors.New("not implemented")
}

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		marker  string
		body    string
		wantErr error
	}{
		{
			name:   "valid",
			query:  "--sql 0b7c31de-0c3a-4c44-9d57-0f37e8f7c001\nselect 1",
			marker: "0b7c31de-0c3a-4c44-9d57-0f37e8f7c001",
			body:   "select 1",
		},
		{
			name:   "leading whitespace",
			query:  "\n  --sql 0b7c31de-0c3a-4c44-9d57-0f37e8f7c001\nselect 1\nfrom t",
			marker: "0b7c31de-0c3a-4c44-9d57-0f37e8f7c001",
			body:   "select 1\nfrom t",
		},
		{name: "missing marker", query: "select 1", wantErr: ErrMissingMarker},
		{name: "uppercase uuid", query: "--sql 0B7C31DE-0C3A-4C44-9D57-0F37E8F7C001\nselect 1", wantErr: ErrMissingMarker},
		{name: "empty", query: "   ", wantErr: ErrEmptyQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker, body, err := extractMarker(tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if marker != tt.marker || body != tt.body {
				t.Fatalf("got (%q, %q), want (%q, %q)", marker, body, tt.marker, tt.body)
			}
		})
	}
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	db := &recordingDB{}
	runner := &SQLRunner{DB: db, Logger: NopLogger()}

	tag, err := runner.Exec(context.Background(), "--sql 0b7c31de-0c3a-4c44-9d57-0f37e8f7c001\nupdate t set a = 1")
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("rows affected = %d", tag.RowsAffected())
	}
	if len(db.queries) != 1 || db.queries[0] != "update t set a = 1" {
		t.Fatalf("unexpected forwarded queries: %#v", db.queries)
	}

	var v int
	if err := runner.QueryRow(context.Background(), "--sql 0b7c31de-0c3a-4c44-9d57-0f37e8f7c001\nselect 1").Scan(&v); !IsNoRows(err) {
		t.Fatalf("expected no rows, got %v", err)
	}
}

func TestSQLRunnerRejectsUnmarkedQuery(t *testing.T) {
	db := &recordingDB{}
	runner := &SQLRunner{DB: db, Logger: NopLogger()}

	if _, err := runner.Exec(context.Background(), "delete from images"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Exec err = %v", err)
	}
	if err := runner.QueryRow(context.Background(), "select 1").Scan(); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("QueryRow err = %v", err)
	}
	if _, err := runner.Query(context.Background(), "select 1"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Query err = %v", err)
	}
	if len(db.queries) != 0 {
		t.Fatalf("unmarked queries reached the database: %#v", db.queries)
	}
}
