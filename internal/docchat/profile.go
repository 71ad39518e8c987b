package docchat

import "docchat/internal/model"

// ProfileSummary aggregates a user's library for the profile view.
type ProfileSummary struct {
	Counts      map[model.DocumentStatus]int
	Documents   int   // documents not deleted
	TotalChunks int   // across documents not deleted
	TotalBytes  int64 // across documents not deleted
	Recent      []*model.Activity
}

// Summarize computes a ProfileSummary. recent caps the number of activities
// kept; activities are expected newest first.
func Summarize(docs []*model.Document, activities []*model.Activity, recent int) ProfileSummary {
	summary := ProfileSummary{Counts: make(map[model.DocumentStatus]int)}
	for _, d := range docs {
		summary.Counts[d.Status]++
		if d.Status == model.StatusDeleted {
			continue
		}
		summary.Documents++
		summary.TotalChunks += d.ChunkCount
		summary.TotalBytes += d.Size
	}

	if recent > 0 && len(activities) > recent {
		activities = activities[:recent]
	}
	summary.Recent = activities
	return summary
}
