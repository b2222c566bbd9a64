package filerecords

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/terravista/terraplan/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+file_records\b.*RETURNING\s+id,\s*created_at,\s*updated_at;?\s*$`
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
		AddRow("r1", now, now)

	mock.ExpectQuery(q).
		WithArgs("m1", "plan.pdf", "application/pdf", int64(1024), "uploads/2026/08/30/abc", "https://store.test/uploads/2026/08/30/abc").
		WillReturnRows(rows)

	record := &models.FileRecord{
		MilestoneID: "m1",
		Name:        "plan.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		StorageKey:  "uploads/2026/08/30/abc",
		URL:         "https://store.test/uploads/2026/08/30/abc",
	}
	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID != "r1" {
		t.Fatalf("want generated id r1, got %q", record.ID)
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not populated: %+v", record)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+file_records\b`
	mock.ExpectQuery(q).
		WithArgs("m1", "plan.pdf", "application/pdf", int64(1024), "skey", "").
		WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.FileRecord{
		MilestoneID: "m1",
		Name:        "plan.pdf",
		ContentType: "application/pdf",
		Size:        1024,
		StorageKey:  "skey",
	})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByMilestone_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+id,\s*milestone_id,\s*name,\s*content_type,\s*size,\s*storage_key,\s*url,\s*created_at,\s*updated_at\s+FROM\s+file_records\s+WHERE\s+milestone_id\s*=\s*\$1`
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "milestone_id", "name", "content_type", "size", "storage_key", "url", "created_at", "updated_at"}).
		AddRow("r2", "m1", "newer.png", "image/png", int64(5), "k2", "", now, now).
		AddRow("r1", "m1", "older.pdf", "application/pdf", int64(9), "k1", "u1", now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery(q).
		WithArgs("m1").
		WillReturnRows(rows)

	got, err := repo.ListByMilestone(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].ID != "r2" || got[0].Name != "newer.png" || got[0].Size != 5 {
		t.Fatalf("bad row[0]: %+v", got[0])
	}
	if got[1].ID != "r1" || got[1].ContentType != "application/pdf" || got[1].URL != "u1" {
		t.Fatalf("bad row[1]: %+v", got[1])
	}
}

func TestListByMilestone_QueryErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+id,.*FROM\s+file_records`).
		WithArgs("m1").
		WillReturnError(errors.New("db err"))

	_, err := repo.ListByMilestone(context.Background(), "m1")
	if err == nil || !regexp.MustCompile(`failed to select file records: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped select error, got %v", err)
	}
}

func TestListByMilestone_ScanErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "milestone_id", "name", "content_type", "size", "storage_key", "url", "created_at", "updated_at"}).
		AddRow("r1", "m1", "f", "application/pdf", "not-int", "k", "", time.Now(), time.Now())

	mock.ExpectQuery(`(?s)SELECT\s+id,.*FROM\s+file_records`).
		WithArgs("m1").
		WillReturnRows(rows)

	if _, err := repo.ListByMilestone(context.Background(), "m1"); err == nil {
		t.Fatalf("expected scan error, got nil")
	}
}

func TestListByMilestone_RowsErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "milestone_id", "name", "content_type", "size", "storage_key", "url", "created_at", "updated_at"}).
		AddRow("r1", "m1", "f1", "application/pdf", int64(1), "k1", "", now, now).
		AddRow("r2", "m1", "f2", "image/png", int64(2), "k2", "", now, now).
		RowError(1, errors.New("row-err"))

	mock.ExpectQuery(`(?s)SELECT\s+id,.*FROM\s+file_records`).
		WithArgs("m1").
		WillReturnRows(rows)

	_, err := repo.ListByMilestone(context.Background(), "m1")
	if err == nil || err.Error() != "row-err" {
		t.Fatalf("expected rows.Err 'row-err', got %v", err)
	}
}

func TestUpdateStorageKey_OK(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+file_records\s+SET\s+storage_key\s*=\s*\$2,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+storage_key\s*=\s*\$1`
	mock.ExpectExec(q).
		WithArgs("old-key", "new-key").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStorageKey(context.Background(), "old-key", "new-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateStorageKey_DBErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+file_records\s+SET\s+storage_key`).
		WithArgs("old-key", "new-key").
		WillReturnError(errors.New("db err"))

	err := repo.UpdateStorageKey(context.Background(), "old-key", "new-key")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteByStorageKey_OK(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `DELETE\s+FROM\s+file_records\s+WHERE\s+storage_key\s*=\s*\$1`
	mock.ExpectExec(q).
		WithArgs("k1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteByStorageKey(context.Background(), "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteByStorageKey_DBErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+file_records`).
		WithArgs("k1").
		WillReturnError(errors.New("db err"))

	err := repo.DeleteByStorageKey(context.Background(), "k1")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
