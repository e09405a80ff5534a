package objectstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-clone-service/internal/runner"
)

const archiveTimeout = time.Minute

// FileUploader stores a local file under a key.
type FileUploader interface {
	UploadFile(ctx context.Context, key, path string) error
}

// Archiver copies every successful output into an object store before
// passing the notification on. Archive failures are logged only; they never
// change the job outcome.
type Archiver struct {
	uploader FileUploader
	next     runner.Notifier
	log      *logger.Logger
}

// NewArchiver wraps next. A nil next drops notifications after archiving.
func NewArchiver(uploader FileUploader, next runner.Notifier, log *logger.Logger) *Archiver {
	return &Archiver{uploader: uploader, next: next, log: log}
}

// ArchiveKey is the object name used for an output file.
func ArchiveKey(outputPath string) string {
	return filepath.Base(outputPath)
}

// Notify implements runner.Notifier.
func (a *Archiver) Notify(n runner.Notification) {
	if n.Outcome.Succeeded() {
		a.archive(n)
	}

	if a.next != nil {
		a.next.Notify(n)
	}
}

func (a *Archiver) archive(n runner.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	key := ArchiveKey(n.Outcome.OutputPath)

	err := a.uploader.UploadFile(ctx, key, n.Outcome.OutputPath)
	if err != nil {
		a.log.Error("Failed to archive output of job %s: %v", n.JobID, err)

		return
	}

	a.log.Info("Archived output of job %s as '%s'", n.JobID, key)
}
