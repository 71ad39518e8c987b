package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"docchat/internal/api"
	"docchat/internal/docchat"
	"docchat/internal/model"
)

// ago formats t relative to now, e.g. "3 minutes ago".
func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Documents writes one line per document, newest first as given.
func Documents(w io.Writer, docs []*model.Document, now time.Time) {
	if len(docs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No documents uploaded yet."))
		return
	}
	for _, d := range docs {
		status := documentStatusStyle(d.Status).Render(fmt.Sprintf("%-10s", d.Status))
		fmt.Fprintf(w, "%s  %s  %s  %8s  %4d chunks  %s\n",
			d.ID, status, d.Name, humanize.Bytes(uint64(d.Size)), d.ChunkCount, mutedStyle.Render(ago(d.UploadedAt, now)))
		if d.Metadata.Title != "" || d.Metadata.Author != "" {
			fmt.Fprintf(w, "    %s\n", mutedStyle.Render(documentByline(d.Metadata)))
		}
	}
}

func documentByline(meta model.DocumentMetadata) string {
	var parts []string
	if meta.Title != "" {
		parts = append(parts, meta.Title)
	}
	if meta.Author != "" {
		parts = append(parts, "by "+meta.Author)
	}
	if meta.PageCount > 0 {
		parts = append(parts, humanize.Comma(int64(meta.PageCount))+" pages")
	}
	return strings.Join(parts, ", ")
}

// Activities writes the audit log, newest first as given.
func Activities(w io.Writer, activities []*model.Activity, now time.Time) {
	if len(activities) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No activity yet."))
		return
	}
	for _, a := range activities {
		fmt.Fprintf(w, "%-14s %-12s %s\n", mutedStyle.Render(ago(a.Timestamp, now)), a.Kind, a.Message)
	}
}

// SearchResults writes ranked search matches.
func SearchResults(w io.Writer, query string, results []docchat.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q.\n", query)
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d results for %q", len(results), query)))
	for i, r := range results {
		header := fmt.Sprintf("%d. %s", i+1, r.Filename)
		if r.Title != "" && r.Title != r.Filename {
			header += " - " + r.Title
		}
		if r.Author != "" {
			header += " (" + r.Author + ")"
		}
		fmt.Fprintf(w, "\n%s  %s\n", header, successStyle.Render(fmt.Sprintf("%.0f%%", r.Similarity*100)))
		fmt.Fprintln(w, r.Preview)
	}
}

// Profile writes the account summary.
func Profile(w io.Writer, user *model.User, summary docchat.ProfileSummary, now time.Time) {
	fmt.Fprintln(w, titleStyle.Render(user.Email))
	fmt.Fprintf(w, "User ID:    %s\n", user.ID)
	fmt.Fprintf(w, "Documents:  %s\n", humanize.Comma(int64(summary.Documents)))
	fmt.Fprintf(w, "Chunks:     %s\n", humanize.Comma(int64(summary.TotalChunks)))
	fmt.Fprintf(w, "Total size: %s\n", humanize.Bytes(uint64(summary.TotalBytes)))

	statuses := []model.DocumentStatus{model.StatusProcessed, model.StatusProcessing, model.StatusUploading, model.StatusFailed, model.StatusDeleted}
	var counts []string
	for _, s := range statuses {
		if n := summary.Counts[s]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s %d", s, n))
		}
	}
	if len(counts) > 0 {
		fmt.Fprintf(w, "By status:  %s\n", strings.Join(counts, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Recent activity"))
	Activities(w, summary.Recent, now)
}

// Sessions writes the saved chat sessions.
func Sessions(w io.Writer, sessions []model.ChatSession, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No saved chats."))
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %s  %s\n", s.ID, s.Title,
			mutedStyle.Render(fmt.Sprintf("%d messages", len(s.Messages))), mutedStyle.Render(ago(s.UpdatedAt, now)))
	}
}

// Status writes the backend's index status.
func Status(w io.Writer, status *api.Status) {
	fmt.Fprintf(w, "Vectors stored:  %s\n", humanize.Comma(int64(status.TotalVectorsStored)))
	fmt.Fprintf(w, "Embedding model: %s\n", status.EmbeddingModel)
	if status.DatabasePath != "" {
		fmt.Fprintf(w, "Database:        %s\n", status.DatabasePath)
	}
}

// Models writes the model catalog, marking current with an asterisk.
func Models(w io.Writer, catalog *docchat.ModelCatalog, currentEmbedding string) {
	fmt.Fprintln(w, titleStyle.Render("Embedding models"))
	for _, m := range catalog.Embedding {
		marker := " "
		if m == currentEmbedding {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %s\n", marker, m)
	}
	fmt.Fprintln(w, titleStyle.Render("Inference models"))
	for _, m := range catalog.Inference {
		fmt.Fprintf(w, "   %s\n", m)
	}
}

// UploadPlan describes staged files before upload.
func UploadPlan(w io.Writer, plan *docchat.UploadPlan) {
	var total int64
	for _, item := range plan.Items {
		total += item.Size
	}
	fmt.Fprintf(w, "%d files staged (%s)\n", len(plan.Items), humanize.Bytes(uint64(total)))
	for _, p := range plan.Unsupported {
		fmt.Fprintln(w, mutedStyle.Render("skipping unsupported file: "+p))
	}
	for _, p := range plan.Duplicates {
		fmt.Fprintln(w, warningStyle.Render("skipping file with a duplicate name: "+p))
	}
	if len(plan.Existing) > 0 {
		fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("%d already uploaded: %s", len(plan.Existing), strings.Join(plan.Existing, ", "))))
	}
}

// UploadItem renders one file's upload status line.
func UploadItem(item docchat.UploadItem) string {
	line := fmt.Sprintf("%s %s", fileStatusIcon(item.Status), item.Name)
	switch {
	case item.Status == docchat.FileCompleted:
		line += fmt.Sprintf(" (%d chunks)", item.Chunks)
	case item.Status == docchat.FileError && item.Error != "":
		line += ": " + item.Error
	}
	return fileStatusStyle(item.Status).Render(line)
}

// UploadReport summarizes a finished upload.
func UploadReport(w io.Writer, report *docchat.UploadReport) {
	parts := []string{successStyle.Render(fmt.Sprintf("%d uploaded", report.Completed))}
	if report.Failed > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d failed", report.Failed)))
	}
	if report.Skipped > 0 {
		parts = append(parts, mutedStyle.Render(fmt.Sprintf("%d skipped", report.Skipped)))
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
}

// Sources renders an answer's citations, one per line.
func Sources(sources []model.Source) string {
	if len(sources) == 0 {
		return ""
	}
	lines := []string{mutedStyle.Render("Sources:")}
	for _, s := range sources {
		lines = append(lines, sourceStyle.Render("• "+docchat.FormatSource(s)))
	}
	return strings.Join(lines, "\n")
}

// Error renders err for the terminal.
func Error(err error) string {
	return errorStyle.Render("Error: " + err.Error())
}
