// Package intake accepts uploads for a case: size and extension budgets, ZIP
// flattening, content-hash dedup, and job enqueueing.
package intake

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"caseos/internal/caseerr"
	"caseos/internal/checklist"
	"caseos/internal/storage"
	"caseos/internal/store"
)

var allowedExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".zip": true, ".csv": true, ".xlsx": true,
}

var ignoredFiles = map[string]bool{
	".DS_Store": true, "Thumbs.db": true, "desktop.ini": true,
}

var ignoredFolders = []string{"__MACOSX", ".git", ".svn"}

// File is one uploaded file.
type File struct {
	Name string
	Data []byte
}

// Result summarizes an upload.
type Result struct {
	Accepted   []store.Document
	Duplicates int
	Skipped    []string
}

// Service validates uploads and enqueues per-document jobs.
type Service struct {
	store       *store.Store
	files       storage.Store
	maxFileSize int64
	maxUpload   int64
	maxAttempts int
	logger      *zap.Logger
}

// NewService builds the intake service.
func NewService(st *store.Store, files storage.Store, maxFileSize, maxUpload int64, maxAttempts int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       st,
		files:       files,
		maxFileSize: maxFileSize,
		maxUpload:   maxUpload,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Upload accepts files for a case. ZIP archives are flattened; every entry is
// validated against the same budgets. Duplicates (by SHA-256 within the case)
// are silently skipped. Each accepted file gets a Document row and one queued
// job, and the case transitions to processing.
func (s *Service) Upload(ctx context.Context, caseID string, files []File) (*Result, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	if total > s.maxUpload {
		return nil, caseerr.NewValidation("upload", "total size %d exceeds limit %d", total, s.maxUpload)
	}

	result := &Result{}
	var flattened []File

	for _, f := range files {
		ext := strings.ToLower(path.Ext(f.Name))
		if !allowedExtensions[ext] {
			return nil, caseerr.NewValidation(f.Name, "unsupported extension %q", ext)
		}
		if int64(len(f.Data)) > s.maxFileSize {
			return nil, caseerr.NewValidation(f.Name, "file size %d exceeds limit %d", len(f.Data), s.maxFileSize)
		}

		if ext == ".zip" {
			entries, skipped, err := s.extractZip(f)
			if err != nil {
				return nil, err
			}
			flattened = append(flattened, entries...)
			result.Skipped = append(result.Skipped, skipped...)
			continue
		}
		flattened = append(flattened, f)
	}

	for _, f := range flattened {
		doc, inserted, err := s.persistFile(ctx, c, f)
		if err != nil {
			return nil, err
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Accepted = append(result.Accepted, *doc)

		if _, err := s.store.EnqueueJob(ctx, c.ID, doc.ID, s.maxAttempts); err != nil {
			return nil, err
		}
	}

	if len(result.Accepted) > 0 {
		if err := s.store.SetCaseStatus(ctx, caseID, store.CaseProcessing); err != nil {
			return nil, err
		}
		s.recomputeCompleteness(ctx, c)
	}

	s.logger.Info("upload complete",
		zap.String("case_id", caseID),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("skipped", len(result.Skipped)))

	return result, nil
}

// extractZip flattens the archive tree, dropping junk entries and validating
// each file against the same budgets and extension set.
func (s *Service) extractZip(f File) ([]File, []string, error) {
	reader, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, nil, caseerr.NewValidation(f.Name, "not a valid ZIP archive")
	}

	var entries []File
	var skipped []string

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		name := path.Base(entry.Name)
		if ignoredFiles[name] || strings.HasPrefix(name, ".") || inIgnoredFolder(entry.Name) {
			skipped = append(skipped, entry.Name)
			continue
		}

		ext := strings.ToLower(path.Ext(name))
		if !allowedExtensions[ext] || ext == ".zip" {
			skipped = append(skipped, entry.Name)
			continue
		}

		if entry.UncompressedSize64 > uint64(s.maxFileSize) {
			skipped = append(skipped, entry.Name)
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			skipped = append(skipped, entry.Name)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(rc, s.maxFileSize+1))
		rc.Close()
		if err != nil || int64(len(data)) > s.maxFileSize {
			skipped = append(skipped, entry.Name)
			continue
		}

		entries = append(entries, File{Name: name, Data: data})
	}

	return entries, skipped, nil
}

func inIgnoredFolder(entryPath string) bool {
	for _, folder := range ignoredFolders {
		if strings.HasPrefix(entryPath, folder+"/") || strings.Contains(entryPath, "/"+folder+"/") {
			return true
		}
	}
	return false
}

func (s *Service) persistFile(ctx context.Context, c *store.Case, f File) (*store.Document, bool, error) {
	hash := sha256.Sum256(f.Data)
	hashHex := hex.EncodeToString(hash[:])
	storageKey := fmt.Sprintf("%s/%s", c.CaseID, f.Name)

	doc, inserted, err := s.store.InsertDocument(ctx, &store.Document{
		CaseID:           c.ID,
		OriginalFilename: f.Name,
		StorageKey:       storageKey,
		SizeBytes:        int64(len(f.Data)),
		MimeType:         mimeFor(f.Name),
		FileHash:         hashHex,
	})
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}

	if err := s.files.Put(storageKey, f.Data); err != nil {
		return nil, false, fmt.Errorf("failed to store %s: %w", f.Name, err)
	}
	return doc, true, nil
}

func mimeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".zip":
		return "application/zip"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

func (s *Service) recomputeCompleteness(ctx context.Context, c *store.Case) {
	docs, err := s.store.ListDocuments(ctx, c.ID)
	if err != nil {
		s.logger.Warn("failed to list documents for completeness", zap.Error(err))
		return
	}
	cl := checklist.Build(c, docs)
	if err := s.store.SetCompletenessScore(ctx, c.CaseID, cl.CompletenessScore); err != nil {
		s.logger.Warn("failed to store completeness score", zap.Error(err))
	}
}
