package collab

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fixflow/fixflow/internal/domain"
)

// Scan thresholds. The heuristics here are intentionally shallow: the
// orchestration core treats any per-partition agent as an opaque function,
// and this built-in scanner exists so the CLI has a working default.
const (
	maxFileLines  = 500
	maxLineLength = 200
)

// Scanner is the built-in assessment agent: it walks a partition's paths and
// reports marker comments and oversized files.
type Scanner struct {
	Root string
}

// Scan implements the per-partition agent function.
func (s *Scanner) Scan(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
	var findings []domain.Finding
	for _, root := range p.Paths {
		full := filepath.Join(s.Root, root)
		info, err := os.Stat(full)
		if err != nil {
			// A missing tree is an empty partition, not a failure.
			continue
		}

		if !info.IsDir() {
			fs, err := s.scanFile(ctx, full, root)
			if err != nil {
				return nil, err
			}
			findings = append(findings, fs...)
			continue
		}

		err = filepath.WalkDir(full, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !isSourceFile(path) {
				return nil
			}
			rel, rerr := filepath.Rel(s.Root, path)
			if rerr != nil {
				rel = path
			}
			fs, serr := s.scanFile(ctx, path, rel)
			if serr != nil {
				return serr
			}
			findings = append(findings, fs...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return findings, nil
}

func (s *Scanner) scanFile(ctx context.Context, full, rel string) ([]domain.Finding, error) {
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []domain.Finding
	var lines int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines++
		line := sc.Text()
		if strings.Contains(line, "FIXME") || strings.Contains(line, "XXX") {
			findings = append(findings, domain.Finding{
				Path:     rel,
				Type:     "marker-comment",
				Severity: "low",
				Message:  "unresolved marker comment",
			})
		}
		if len(line) > maxLineLength {
			findings = append(findings, domain.Finding{
				Path:     rel,
				Type:     "long-line",
				Severity: "low",
				Message:  "line exceeds readable length",
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if lines > maxFileLines {
		findings = append(findings, domain.Finding{
			Path:     rel,
			Type:     "large-file",
			Severity: "medium",
			Message:  "file exceeds size threshold",
		})
	}
	return findings, nil
}

func isSourceFile(path string) bool {
	switch filepath.Ext(path) {
	case ".go", ".js", ".ts", ".py", ".java", ".rb", ".rs", ".c", ".h", ".cpp":
		return true
	default:
		return false
	}
}
