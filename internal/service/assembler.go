package service

import (
	"fmt"
	"strings"

	"github.com/codeancestry/codeancestry/internal/domain"
)

// maxFilesPerBlock caps the file list in a context block so one sprawling
// commit cannot eat the whole budget.
const maxFilesPerBlock = 5

// AssembleContext renders retrieved commits into a bounded prompt context.
// Blocks are concatenated in rank order (most relevant first) and assigned
// 1-based citation indices matching that order. If the rendered text would
// exceed budget bytes, the lowest-ranked blocks are dropped whole — a
// truncated commit block is worse than omitting a low-relevance commit.
func AssembleContext(retrieved []domain.RetrievedCommit, budget int) domain.ContextBlock {
	var (
		b         strings.Builder
		citations []domain.Citation
	)

	for i, rc := range retrieved {
		block := renderCommitBlock(i+1, &rc)

		sep := ""
		if b.Len() > 0 {
			sep = "\n"
		}
		if budget > 0 && b.Len()+len(sep)+len(block) > budget {
			break
		}

		b.WriteString(sep)
		b.WriteString(block)
		citations = append(citations, domain.Citation{
			Index:      i + 1,
			CommitID:   rc.ID,
			SHA:        rc.SHA,
			Message:    rc.Message,
			AISummary:  rc.AISummary,
			AuthorName: rc.AuthorName,
			CommitDate: rc.CommitDate,
			HTMLURL:    rc.HTMLURL,
			Similarity: rc.Similarity,
		})
	}

	return domain.ContextBlock{Text: b.String(), Citations: citations}
}

func renderCommitBlock(index int, rc *domain.RetrievedCommit) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%d] Commit %s by %s (%s)\n", index, rc.ShortSHA(), rc.AuthorName, rc.CommitDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Message: %s\n", strings.TrimSpace(rc.Message))
	if rc.AISummary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", rc.AISummary)
	}
	if len(rc.FilesChanged) > 0 {
		files := rc.FilesChanged
		if len(files) > maxFilesPerBlock {
			files = files[:maxFilesPerBlock]
		}
		fmt.Fprintf(&b, "Files: %s\n", strings.Join(files, ", "))
	}
	fmt.Fprintf(&b, "Changes: +%d -%d\n", rc.Additions, rc.Deletions)

	return b.String()
}
