package lessons

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/atomicfile"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/lock"
	"github.com/pbrown/claude-recall/internal/models"
)

// Store implements C3 LessonStore against two Markdown files: the
// project-tier LESSONS.md and the system-tier LESSONS.md (spec.md §4.3).
type Store struct {
	ProjectPath  string
	SystemPath   string
	LockTimeout  time.Duration
	StaleDays    int
}

// NewStore builds a Store for the given project and system LESSONS.md
// paths, using spec.md's default stale-days and lock-timeout.
func NewStore(projectPath, systemPath string) *Store {
	return &Store{
		ProjectPath: projectPath,
		SystemPath:  systemPath,
		LockTimeout: lock.DefaultTimeout,
		StaleDays:   models.StaleDaysDefault,
	}
}

func (s *Store) pathFor(level string) string {
	if level == "system" {
		return s.SystemPath
	}
	return s.ProjectPath
}

func (s *Store) prefixFor(level string) string {
	if level == "system" {
		return "S"
	}
	return "L"
}

// List returns all lessons from both tiers, sorted by ID.
func (s *Store) List() ([]*models.Lesson, error) {
	project, err := s.load(s.ProjectPath, "project")
	if err != nil {
		return nil, err
	}
	system, err := s.load(s.SystemPath, "system")
	if err != nil {
		return nil, err
	}
	all := append(project, system...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// Search filters by free-text query (title/content substring, case
// insensitive), category, and staleness.
func (s *Store) Search(query, category string, stale bool) ([]*models.Lesson, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var out []*models.Lesson
	for _, l := range all {
		if category != "" && l.Category != category {
			continue
		}
		if stale && !l.IsStale(s.staleDays()) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(l.Title), q) && !strings.Contains(strings.ToLower(l.Content), q) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) staleDays() int {
	if s.StaleDays <= 0 {
		return models.StaleDaysDefault
	}
	return s.StaleDays
}

// Get returns a single lesson by ID.
func (s *Store) Get(id string) (*models.Lesson, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, l := range all {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("lesson %s: %w", id, errs.ErrNotFound)
}

// Add appends a new lesson to the given tier, assigning the next ID.
// Fails with ErrDuplicate if another lesson in the same tier has an
// identical normalized title, unless force is true.
func (s *Store) Add(level, category, title, content, source string, promotable bool, lessonType string, force bool) (*models.Lesson, error) {
	if !models.LessonLevels[level] {
		level = "project"
	}
	// A LESSON: command without a category prefix is recorded as a pattern;
	// Parse skips records whose Category field is empty.
	if category == "" {
		category = "pattern"
	}
	path := s.pathFor(level)

	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return nil, err
	}
	defer fl.Release()

	existing, warnings := s.parseFile(path)
	_ = warnings

	title = models.Sanitize(title, models.MaxTitleLen)
	content = models.Sanitize(content, models.MaxContentLen)

	if !force {
		normalized := (&models.Lesson{Title: title}).NormalizedTitle()
		for _, l := range existing {
			if l.NormalizedTitle() == normalized {
				return nil, fmt.Errorf("lesson titled %q: %w", title, errs.ErrDuplicate)
			}
		}
	}

	id := nextID(existing, s.prefixFor(level))
	lesson := models.NewLesson(id, category, title, content)
	lesson.Level = level
	if source != "" {
		lesson.Source = source
	}
	lesson.Promotable = promotable
	lesson.LessonType = lessonType

	existing = append(existing, lesson)
	if err := s.write(path, existing, level); err != nil {
		return nil, err
	}
	return lesson, nil
}

// Cite increments uses (saturating), bumps velocity by 1.0, and sets
// last-used to today. Not idempotent by design (spec.md §8): callers are
// responsible for at-most-once delivery via the transcript checkpoint.
func (s *Store) Cite(ids ...string) error {
	byLevel := map[string][]string{}
	all, err := s.List()
	if err != nil {
		return err
	}
	levelByID := map[string]string{}
	for _, l := range all {
		levelByID[l.ID] = l.Level
	}
	for _, id := range ids {
		lvl, ok := levelByID[id]
		if !ok {
			continue
		}
		byLevel[lvl] = append(byLevel[lvl], id)
	}

	for level, levelIDs := range byLevel {
		if err := s.citeInFile(level, levelIDs); err != nil {
			return err
		}
	}
	return nil
}

// Decay applies fn to every lesson in both tiers in a single locked
// read-modify-write pass per tier, used by the decay engine to avoid one
// lock/parse/write cycle per lesson. fn mutates l in place and reports
// whether anything changed.
func (s *Store) Decay(fn func(l *models.Lesson) (changed bool)) (int, error) {
	projectCount, err := s.decayFile(s.ProjectPath, "project", fn)
	if err != nil {
		return 0, err
	}
	systemCount, err := s.decayFile(s.SystemPath, "system", fn)
	if err != nil {
		return 0, err
	}
	return projectCount + systemCount, nil
}

func (s *Store) decayFile(path, level string, fn func(*models.Lesson) bool) (int, error) {
	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return 0, err
	}
	defer fl.Release()

	lessons, _ := s.parseFile(path)
	count := 0
	for _, l := range lessons {
		if fn(l) {
			count++
		}
	}
	if err := s.write(path, lessons, level); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) citeInFile(level string, ids []string) error {
	path := s.pathFor(level)
	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	lessons, _ := s.parseFile(path)
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for _, l := range lessons {
		if want[l.ID] {
			l.Cite()
		}
	}
	return s.write(path, lessons, level)
}

// Edit applies a field->value update map to an existing lesson.
func (s *Store) Edit(id string, updates map[string]interface{}) error {
	path, level, err := s.locate(id)
	if err != nil {
		return err
	}

	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	lessons, _ := s.parseFile(path)
	found := false
	for _, l := range lessons {
		if l.ID == id {
			applyUpdates(l, updates)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("lesson %s: %w", id, errs.ErrNotFound)
	}
	return s.write(path, lessons, level)
}

// Delete removes a lesson's record block entirely.
func (s *Store) Delete(id string) error {
	path, level, err := s.locate(id)
	if err != nil {
		return err
	}

	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	lessons, _ := s.parseFile(path)
	var remaining []*models.Lesson
	found := false
	for _, l := range lessons {
		if l.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, l)
	}
	if !found {
		return fmt.Errorf("lesson %s: %w", id, errs.ErrNotFound)
	}
	return s.write(path, remaining, level)
}

// Promote copies a project lesson into the system tier, keeping the
// original (spec.md §4.3: host decides archival). Requires promotable and
// uses >= SystemPromotionThreshold.
func (s *Store) Promote(id string) (*models.Lesson, error) {
	l, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if l.Level != "project" {
		return nil, fmt.Errorf("lesson %s is not project-tier: %w", id, errs.ErrUsage)
	}
	if !l.Promotable || l.Uses < models.SystemPromotionThreshold {
		return nil, fmt.Errorf("lesson %s not eligible for promotion: %w", id, errs.ErrUsage)
	}

	fl, err := lock.Acquire(s.SystemPath+".lock", s.lockTimeout())
	if err != nil {
		return nil, err
	}
	defer fl.Release()

	system, _ := s.parseFile(s.SystemPath)
	newID := nextID(system, "S")
	copy := *l
	copy.ID = newID
	copy.Level = "system"
	system = append(system, &copy)
	if err := s.write(s.SystemPath, system, "system"); err != nil {
		return nil, err
	}
	return &copy, nil
}

func (s *Store) lockTimeout() time.Duration {
	if s.LockTimeout <= 0 {
		return lock.DefaultTimeout
	}
	return s.LockTimeout
}

func (s *Store) load(path, level string) ([]*models.Lesson, error) {
	lessons, _ := s.parseFile(path)
	for _, l := range lessons {
		l.Level = level
	}
	return lessons, nil
}

func (s *Store) parseFile(path string) ([]*models.Lesson, []string) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()
	return Parse(f)
}

func (s *Store) write(path string, lessons []*models.Lesson, level string) error {
	content := Serialize(lessons, level)
	if err := atomicfile.Write(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}

func (s *Store) locate(id string) (path, level string, err error) {
	if strings.HasPrefix(id, "L") {
		if lessons, _ := s.parseFile(s.ProjectPath); containsID(lessons, id) {
			return s.ProjectPath, "project", nil
		}
	} else if strings.HasPrefix(id, "S") {
		if lessons, _ := s.parseFile(s.SystemPath); containsID(lessons, id) {
			return s.SystemPath, "system", nil
		}
	}
	return "", "", fmt.Errorf("lesson %s: %w", id, errs.ErrNotFound)
}

func containsID(lessons []*models.Lesson, id string) bool {
	for _, l := range lessons {
		if l.ID == id {
			return true
		}
	}
	return false
}

func nextID(lessons []*models.Lesson, prefix string) string {
	max := 0
	for _, l := range lessons {
		if strings.HasPrefix(l.ID, prefix) {
			if n, err := strconv.Atoi(strings.TrimPrefix(l.ID, prefix)); err == nil && n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%s%03d", prefix, max+1)
}

func applyUpdates(l *models.Lesson, updates map[string]interface{}) {
	if v, ok := updates["title"].(string); ok {
		l.Title = models.Sanitize(v, models.MaxTitleLen)
	}
	if v, ok := updates["content"].(string); ok {
		l.Content = models.Sanitize(v, models.MaxContentLen)
	}
	if v, ok := updates["category"].(string); ok {
		l.Category = v
	}
	if v, ok := updates["source"].(string); ok {
		l.Source = v
	}
	if v, ok := updates["type"].(string); ok {
		l.LessonType = v
	}
	if v, ok := updates["promotable"].(bool); ok {
		l.Promotable = v
	}
	if v, ok := updates["triggers"].([]string); ok {
		l.Triggers = v
	}
	if v, ok := updates["velocity"].(float64); ok {
		l.Velocity = v
	}
	if v, ok := updates["uses"].(int); ok {
		l.Uses = v
	}
	if v, ok := updates["last_used"].(time.Time); ok {
		l.LastUsed = v
	}
}
