package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rangelabs/rangecloud/pkg/models"
)

func newArchive(t *testing.T, maxReport, maxComment int64) *Archive {
	t.Helper()
	return NewArchive(Config{Dir: t.TempDir(), MaxReportLength: maxReport, MaxCommentLength: maxComment})
}

func TestSubmitWritesReportFile(t *testing.T) {
	a := newArchive(t, -1, -1)

	id, err := a.Submit("alice@10.0.0.7", models.ReportRecord{
		Report:  "the backup job is stuck",
		Comment: "third time this week",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := os.ReadDir(a.cfg.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, "-"+id+".rpt"), name)

	raw, err := os.ReadFile(filepath.Join(a.cfg.Dir, name))
	require.NoError(t, err)
	text := string(raw)

	assert.Contains(t, text, "ID: "+id+"\n")
	assert.Contains(t, text, "FROM: alice@10.0.0.7\n")
	assert.Contains(t, text, "CREATED: ")
	assert.Contains(t, text, "RECORDED: ")
	assert.Contains(t, text, "REPORT BEGIN\n")
	assert.Contains(t, text, "the backup job is stuck")
	assert.Contains(t, text, "REPORT END\n")
	assert.Contains(t, text, "COMMENT BEGIN\n")
	assert.Contains(t, text, "third time this week")
	assert.Contains(t, text, "COMMENT END\n")
	assert.Contains(t, text, strings.Repeat("=", 80))
	assert.Contains(t, text, strings.Repeat("-", 80))
}

func TestSubmitEnforcesLengthLimits(t *testing.T) {
	a := newArchive(t, 10, 5)

	_, err := a.Submit("alice", models.ReportRecord{Report: strings.Repeat("x", 11)})
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))

	_, err = a.Submit("alice", models.ReportRecord{Report: "ok", Comment: strings.Repeat("x", 6)})
	require.Error(t, err)
	assert.Equal(t, models.ErrorInvalidInput, models.ErrorTypeOf(err))

	entries, readErr := os.ReadDir(a.cfg.Dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSubmitNegativeLimitsDisableChecks(t *testing.T) {
	a := newArchive(t, -1, -1)
	_, err := a.Submit("alice", models.ReportRecord{Report: strings.Repeat("x", 100000)})
	assert.NoError(t, err)
}

func TestStatisticsCountsSubmissions(t *testing.T) {
	a := newArchive(t, -1, -1)
	_, err := a.Submit("alice", models.ReportRecord{Report: "r"})
	require.NoError(t, err)
	_, err = a.Submit("bob", models.ReportRecord{Report: "r"})
	require.NoError(t, err)

	stats := a.Statistics()
	assert.Equal(t, "reportManager", stats["service"])
	assert.Equal(t, uint64(2), stats["reports"])
}
