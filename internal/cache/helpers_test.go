package cache

import "github.com/pbrown/claude-recall/internal/models"

func lessonsWithIDs(ids ...string) []*models.Lesson {
	out := make([]*models.Lesson, len(ids))
	for i, id := range ids {
		l := models.NewLesson(id, "pattern", "title", "content")
		out[i] = l
	}
	return out
}
