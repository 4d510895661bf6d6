package intake

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseos/internal/caseerr"
	"caseos/internal/storage"
	"caseos/internal/store"
)

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	st := store.NewStoreFromDB(db)
	return NewService(st, files, 20<<20, 100<<20, 2, nil), mock
}

func TestExtractZipDropsJunkEntries(t *testing.T) {
	svc, _ := newTestService(t)

	payload := buildZip(t, map[string][]byte{
		"statements/january.pdf":  []byte("pdf-bytes-jan"),
		"statements/.DS_Store":    []byte("junk"),
		"__MACOSX/january.pdf":    []byte("resource fork"),
		"statements/notes.txt":    []byte("not allowed"),
		"statements/february.pdf": []byte("pdf-bytes-feb"),
	})

	entries, skipped, err := svc.extractZip(File{Name: "bundle.zip", Data: payload})
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"january.pdf", "february.pdf"}, names)
	assert.Len(t, skipped, 3)
}

func TestExtractZipRejectsNonArchive(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.extractZip(File{Name: "fake.zip", Data: []byte("definitely not a zip")})
	require.Error(t, err)
	assert.True(t, caseerr.IsValidation(err))
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM cases WHERE case_id`).
		WillReturnRows(testCaseRows("CASE-20250701-0001"))

	_, err := svc.Upload(context.Background(), "CASE-20250701-0001", []File{
		{Name: "virus.exe", Data: []byte("nope")},
	})
	require.Error(t, err)
	assert.True(t, caseerr.IsValidation(err))
}

func TestUploadRejectsOversizedAggregate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	svc := NewService(store.NewStoreFromDB(db), files, 100, 150, 2, nil)

	mock.ExpectQuery(`FROM cases WHERE case_id`).
		WillReturnRows(testCaseRows("CASE-20250701-0001"))

	_, err = svc.Upload(context.Background(), "CASE-20250701-0001", []File{
		{Name: "a.pdf", Data: bytes.Repeat([]byte("x"), 100)},
		{Name: "b.pdf", Data: bytes.Repeat([]byte("y"), 100)},
	})
	require.Error(t, err)
	assert.True(t, caseerr.IsValidation(err))
}

func testCaseRows(caseID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "case_id", "user_id", "organization_id", "status", "program_type",
		"borrower_name", "entity_type", "industry_type", "pincode", "business_vintage_years",
		"loan_amount_requested", "cibil_score_manual", "monthly_turnover_manual",
		"gstin", "gst_data", "completeness_score", "created_at", "updated_at",
	}).AddRow(
		"case-uuid", caseID, "user-uuid", nil, "created", nil,
		nil, nil, nil, nil, nil,
		nil, nil, nil,
		nil, nil, 0.0, now, now,
	)
}

func docRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "case_id", "original_filename", "storage_key", "size_bytes",
		"mime_type", "file_hash", "doc_type", "classification_confidence",
		"ocr_text", "status", "created_at", "updated_at",
	}).AddRow(id, "case-uuid", "a.pdf", "CASE-20250701-0001/a.pdf", 9,
		"application/pdf", "h", nil, nil, nil, "uploaded", now, now)
}

func emptyDocRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"})
}

func jobRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "case_id", "document_id", "status", "attempts", "max_attempts",
		"last_error", "leased_at", "created_at", "updated_at",
	}).AddRow(id, "case-uuid", "doc-1", "queued", 0, 2, nil, nil, now, now)
}

func TestUploadDeduplicatesIdenticalBytes(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM cases WHERE case_id`).
		WillReturnRows(testCaseRows("CASE-20250701-0001"))

	// First file inserts; the second (same bytes, different name) conflicts.
	mock.ExpectQuery(`INSERT INTO documents`).WillReturnRows(docRows("doc-1"))
	mock.ExpectQuery(`INSERT INTO document_processing_jobs`).WillReturnRows(jobRows("job-1"))
	mock.ExpectQuery(`INSERT INTO documents`).WillReturnRows(emptyDocRows())

	mock.ExpectExec(`UPDATE cases SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM documents WHERE case_id`).WillReturnRows(emptyDocRows())
	mock.ExpectExec(`UPDATE cases SET completeness_score`).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := svc.Upload(context.Background(), "CASE-20250701-0001", []File{
		{Name: "statement.pdf", Data: []byte("same-pdf")},
		{Name: "statement_copy.pdf", Data: []byte("same-pdf")},
	})
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 1)
	assert.Equal(t, 1, result.Duplicates)
	require.NoError(t, mock.ExpectationsWereMet())
}
