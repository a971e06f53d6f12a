// Package report implements the report archive: inbound reports are
// written as standalone human-readable files, one per submission, with
// no in-memory index.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/pkg/models"
)

var (
	ruleThick = strings.Repeat("=", 80)
	ruleThin  = strings.Repeat("-", 80)
)

// Config bounds the accepted payload sizes. A negative limit disables
// the corresponding check.
type Config struct {
	Dir              string
	MaxReportLength  int64
	MaxCommentLength int64
}

// Archive writes report files under the configured directory.
type Archive struct {
	cfg     Config
	submits uint64
}

// NewArchive builds an archive writing into cfg.Dir.
func NewArchive(cfg Config) *Archive {
	return &Archive{cfg: cfg}
}

// Submit validates the record's lengths and writes a new report file.
// Returns the new report id.
func (a *Archive) Submit(from string, record models.ReportRecord) (string, error) {
	if a.cfg.MaxReportLength >= 0 && int64(len(record.Report)) > a.cfg.MaxReportLength {
		return "", models.NewServiceError(models.ErrorInvalidInput,
			fmt.Sprintf("report length %d is bigger than maximum allowed %d", len(record.Report), a.cfg.MaxReportLength))
	}
	if a.cfg.MaxCommentLength >= 0 && int64(len(record.Comment)) > a.cfg.MaxCommentLength {
		return "", models.NewServiceError(models.ErrorInvalidInput,
			fmt.Sprintf("comment length %d is bigger than maximum allowed %d", len(record.Comment), a.cfg.MaxCommentLength))
	}

	id := uuid.NewString()
	now := time.Now()
	path := filepath.Join(a.cfg.Dir, fmt.Sprintf("%s-%s.rpt", now.Format("20060102-150405"), id))

	created := now
	if record.Created > 0 {
		created = time.Unix(record.Created, 0)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", id)
	fmt.Fprintf(&b, "FROM: %s\n", from)
	fmt.Fprintf(&b, "CREATED: %s\n", created.Format(time.ANSIC))
	fmt.Fprintf(&b, "RECORDED: %s\n", now.Format(time.ANSIC))
	b.WriteString(ruleThick + "\n\n")
	b.WriteString("REPORT BEGIN\n")
	b.WriteString(ruleThin + "\n")
	b.WriteString(record.Report + "\n")
	b.WriteString(ruleThin + "\n")
	b.WriteString("REPORT END\n\n")
	b.WriteString(ruleThick + "\n\n")
	b.WriteString("COMMENT BEGIN\n")
	b.WriteString(ruleThin + "\n")
	b.WriteString(record.Comment + "\n")
	b.WriteString(ruleThin + "\n")
	b.WriteString("COMMENT END\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", models.NewServiceError(models.ErrorWriteFile,
			fmt.Sprintf("failed to write report file %q: %s", path, err))
	}

	logger.Info("Report recorded", "path", path, "from", from, "size", b.Len())
	a.submits++
	return id, nil
}

// Statistics returns the archive's counters.
func (a *Archive) Statistics() map[string]any {
	return map[string]any{
		"service": "reportManager",
		"reports": a.submits,
	}
}
