package store

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var caseCols = []string{
	"id", "case_id", "user_id", "organization_id", "status", "program_type",
	"borrower_name", "entity_type", "industry_type", "pincode", "business_vintage_years",
	"loan_amount_requested", "cibil_score_manual", "monthly_turnover_manual",
	"gstin", "gst_data", "completeness_score", "created_at", "updated_at",
}

func caseRow(caseID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(caseCols).AddRow(
		"11111111-1111-1111-1111-111111111111", caseID,
		"22222222-2222-2222-2222-222222222222", nil, "created", nil,
		nil, nil, nil, nil, nil,
		nil, nil, nil,
		nil, nil, 0.0, now, now,
	)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreFromDB(db), mock
}

func TestCreateCaseGeneratesSequencedID(t *testing.T) {
	s, mock := newMockStore(t)

	prefix := "CASE-" + time.Now().UTC().Format("20060102") + "-"
	wantID := prefix + "0007"

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases WHERE case_id LIKE \$1`).
		WithArgs(prefix + "%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	mock.ExpectQuery(`INSERT INTO cases`).
		WillReturnRows(caseRow(wantID))

	c, err := s.CreateCase(context.Background(), "22222222-2222-2222-2222-222222222222", nil, CaseCreate{})
	require.NoError(t, err)
	assert.Equal(t, wantID, c.CaseID)
	assert.Regexp(t, regexp.MustCompile(`^CASE-\d{8}-\d{4}$`), c.CaseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCaseRetriesOnUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	prefix := "CASE-" + time.Now().UTC().Format("20060102") + "-"

	// First attempt loses the race on the unique constraint.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO cases`).
		WillReturnError(&pq.Error{Code: "23505"})

	// Second attempt re-reads the counter and succeeds.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`INSERT INTO cases`).
		WillReturnRows(caseRow(prefix + "0003"))

	c, err := s.CreateCase(context.Background(), "22222222-2222-2222-2222-222222222222", nil, CaseCreate{})
	require.NoError(t, err)
	assert.Equal(t, prefix+"0003", c.CaseID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocumentDeduplicates(t *testing.T) {
	s, mock := newMockStore(t)

	docCols := []string{
		"id", "case_id", "original_filename", "storage_key", "size_bytes",
		"mime_type", "file_hash", "doc_type", "classification_confidence",
		"ocr_text", "status", "created_at", "updated_at",
	}
	now := time.Now()

	doc := &Document{
		CaseID:           "case-uuid",
		OriginalFilename: "stmt.pdf",
		StorageKey:       "CASE-20250701-0001/stmt.pdf",
		SizeBytes:        1024,
		MimeType:         "application/pdf",
		FileHash:         "abc123",
	}

	mock.ExpectQuery(`INSERT INTO documents`).
		WillReturnRows(sqlmock.NewRows(docCols).AddRow(
			"doc-1", "case-uuid", "stmt.pdf", "CASE-20250701-0001/stmt.pdf", 1024,
			"application/pdf", "abc123", nil, nil, nil, "uploaded", now, now))

	insertedDoc, inserted, err := s.InsertDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "doc-1", insertedDoc.ID)

	// Same content hash: ON CONFLICT DO NOTHING returns no rows, no error.
	mock.ExpectQuery(`INSERT INTO documents`).
		WillReturnRows(sqlmock.NewRows(docCols))

	dup, inserted, err := s.InsertDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Nil(t, dup)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaseNextJobEmptyQueue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE document_processing_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	job, err := s.LeaseNextJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailJobTerminalAfterBudget(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE document_processing_jobs SET`).
		WithArgs("job-1", "ocr blew up").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

	terminal, err := s.FailJob(context.Background(), "job-1", "ocr blew up")
	require.NoError(t, err)
	assert.True(t, terminal)

	mock.ExpectQuery(`UPDATE document_processing_jobs SET`).
		WithArgs("job-2", "flaky parser").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("queued"))

	terminal, err = s.FailJob(context.Background(), "job-2", "flaky parser")
	require.NoError(t, err)
	assert.False(t, terminal)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheGSTDataIdempotent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE cases SET gstin`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := s.CacheGSTData(context.Background(), "CASE-20250701-0001", "27AABCU9603R1ZM", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, won)

	// Second call with the same GSTIN matches no rows.
	mock.ExpectExec(`UPDATE cases SET gstin`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err = s.CacheGSTData(context.Background(), "CASE-20250701-0001", "27AABCU9603R1ZM", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseIDRollsOverAcrossDays(t *testing.T) {
	// The prefix carries the UTC date, so two different days never collide
	// even with identical sequence numbers.
	day1 := fmt.Sprintf("CASE-%s-0001", time.Date(2025, 6, 30, 23, 59, 0, 0, time.UTC).Format("20060102"))
	day2 := fmt.Sprintf("CASE-%s-0001", time.Date(2025, 7, 1, 0, 1, 0, 0, time.UTC).Format("20060102"))
	assert.NotEqual(t, day1, day2)
	assert.Regexp(t, `^CASE-\d{8}-\d{4}$`, day1)
}
