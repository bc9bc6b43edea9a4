package handoffs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pbrown/claude-recall/internal/atomicfile"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/lock"
	"github.com/pbrown/claude-recall/internal/models"
)

// Store implements C4 HandoffStore against the shared and stealth
// Markdown files (spec.md §4.4).
type Store struct {
	SharedPath   string // HANDOFFS.md
	StealthPath  string // HANDOFFS_LOCAL.md
	ArchivePath  string // HANDOFFS_ARCHIVE.md; Archive appends rotated handoffs from both tiers here
	LockTimeout  time.Duration
}

// NewStore builds a Store rooted at $PROJECT_DIR/.claude-recall.
func NewStore(dir string) *Store {
	return &Store{
		SharedPath:  dir + "/HANDOFFS.md",
		StealthPath: dir + "/HANDOFFS_LOCAL.md",
		ArchivePath: dir + "/HANDOFFS_ARCHIVE.md",
		LockTimeout: lock.DefaultTimeout,
	}
}

func (s *Store) pathFor(stealth bool) string {
	if stealth {
		return s.StealthPath
	}
	return s.SharedPath
}

func (s *Store) lockTimeout() time.Duration {
	if s.LockTimeout <= 0 {
		return lock.DefaultTimeout
	}
	return s.LockTimeout
}

// GenerateID samples 4 bytes of cryptographic randomness and formats them
// as "hf-XXXXXXX" (7 lowercase hex chars, spec.md §4.4). Collisions are
// detected on insert, not prevented here.
func GenerateID() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate handoff id: %w", err)
	}
	return "hf-" + hex.EncodeToString(b[:])[:7], nil
}

// List returns handoffs across both tiers, optionally filtered by status
// and excluding completed ones unless includeCompleted is set.
func (s *Store) List(statusFilter string, includeCompleted bool) ([]*models.Handoff, error) {
	shared, err := s.load(s.SharedPath, false)
	if err != nil {
		return nil, err
	}
	stealth, err := s.load(s.StealthPath, true)
	if err != nil {
		return nil, err
	}
	all := append(shared, stealth...)

	var out []*models.Handoff
	for _, h := range all {
		if !includeCompleted && h.Status == "completed" {
			continue
		}
		if statusFilter != "" && h.Status != statusFilter {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Updated.After(out[j].Updated) })
	return out, nil
}

// GetByID finds a handoff across both tiers.
func (s *Store) GetByID(id string) (*models.Handoff, error) {
	all, err := s.List("", true)
	if err != nil {
		return nil, err
	}
	for _, h := range all {
		if h.ID == id {
			return h, nil
		}
	}
	return nil, fmt.Errorf("handoff %s: %w", id, errs.ErrNotFound)
}

// Add creates a new handoff in the given tier.
func (s *Store) Add(title string, stealth bool) (*models.Handoff, error) {
	path := s.pathFor(stealth)

	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return nil, err
	}
	defer fl.Release()

	existing, err := s.parseFile(path, stealth)
	if err != nil {
		return nil, err
	}

	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	for containsID(existing, id) {
		if id, err = GenerateID(); err != nil {
			return nil, err
		}
	}

	h := models.NewHandoff(id, title)
	h.Stealth = stealth
	existing = append(existing, h)
	if err := s.write(path, existing, stealth); err != nil {
		return nil, err
	}
	return h, nil
}

// Update applies a field->value update map and re-normalizes state.
func (s *Store) Update(id string, updates map[string]interface{}) error {
	return s.mutate(id, func(h *models.Handoff) error {
		if v, ok := updates["title"].(string); ok {
			h.Title = v
		}
		if v, ok := updates["status"].(string); ok && models.HandoffStatuses[v] {
			h.Status = v
		}
		if v, ok := updates["phase"].(string); ok && models.HandoffPhases[v] {
			h.Phase = v
		}
		if v, ok := updates["agent"].(string); ok && models.HandoffAgents[v] {
			h.Agent = v
		}
		if v, ok := updates["description"].(string); ok {
			h.Description = v
		}
		if v, ok := updates["next_steps"].(string); ok {
			h.NextSteps = v
		}
		if v, ok := updates["checkpoint"].(string); ok {
			h.Checkpoint = v
		}
		if v, ok := updates["refs"].([]string); ok {
			h.Refs = v
		}
		if v, ok := updates["blocked_by"].([]string); ok {
			h.BlockedBy = v
		}
		h.NormalizeState()
		h.Updated = time.Now()
		return nil
	})
}

// AddTriedStep appends a tried step, applying spec.md §4.4's auto-transition
// rules (handled in models.Handoff.AddTriedStep).
func (s *Store) AddTriedStep(id, outcome, description string, implementingKeywords []string) error {
	return s.mutate(id, func(h *models.Handoff) error {
		h.AddTriedStep(outcome, description, implementingKeywords)
		return nil
	})
}

// Complete marks a handoff completed and phase=review.
func (s *Store) Complete(id string) error {
	return s.mutate(id, func(h *models.Handoff) error {
		h.Status = "completed"
		h.NormalizeState()
		h.Updated = time.Now()
		return nil
	})
}

// SetContext replaces a handoff's continuation context record.
func (s *Store) SetContext(id string, ctx *models.HandoffContext) error {
	return s.mutate(id, func(h *models.Handoff) error {
		h.Context = ctx
		h.Updated = time.Now()
		return nil
	})
}

// LinkSession appends a session ID to a handoff's session list if absent.
func (s *Store) LinkSession(id, sessionID string) error {
	return s.mutate(id, func(h *models.Handoff) error {
		for _, existing := range h.Sessions {
			if existing == sessionID {
				return nil
			}
		}
		h.Sessions = append(h.Sessions, sessionID)
		return nil
	})
}

// Archive partitions each tier into active and completed, keeping
// completed entries updated within 7 days or ranked in the 3 most recent
// by update time, and moves the remainder to the archive file
// (spec.md §4.4/test 5). Returns the total count archived.
func (s *Store) Archive() (int, error) {
	sharedCount, err := s.archiveTier(s.SharedPath, false)
	if err != nil {
		return 0, err
	}
	stealthCount, err := s.archiveTier(s.StealthPath, true)
	if err != nil {
		return 0, err
	}
	return sharedCount + stealthCount, nil
}

func (s *Store) archiveTier(path string, stealth bool) (int, error) {
	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return 0, err
	}
	defer fl.Release()

	all, err := s.parseFile(path, stealth)
	if err != nil {
		return 0, err
	}

	var active, completed []*models.Handoff
	for _, h := range all {
		if h.Status == "completed" {
			completed = append(completed, h)
		} else {
			active = append(active, h)
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].Updated.After(completed[j].Updated) })

	cutoff := time.Now().AddDate(0, 0, -models.HandoffMaxAgeDays)
	var kept, archived []*models.Handoff
	for i, h := range completed {
		if h.Updated.After(cutoff) || i < models.HandoffMaxCompleted {
			kept = append(kept, h)
		} else {
			archived = append(archived, h)
		}
	}

	if len(archived) == 0 {
		return 0, nil
	}

	if err := s.write(path, append(active, kept...), stealth); err != nil {
		return 0, err
	}
	if err := s.appendArchive(archived); err != nil {
		return 0, err
	}
	return len(archived), nil
}

func (s *Store) appendArchive(handoffs []*models.Handoff) error {
	existing, _ := s.parseFile(s.ArchivePath, false)
	existing = append(existing, handoffs...)

	var sb strings.Builder
	sb.WriteString("# HANDOFFS_ARCHIVE.md - Completed Work\n\n")
	sb.WriteString("> Archived by Archive() when older than 7 days or beyond the 3 most-recent completed window.\n\n")
	for _, h := range existing {
		sb.WriteString(SerializeOne(h))
	}
	return atomicfile.Write(s.ArchivePath, []byte(sb.String()), 0644)
}

func (s *Store) mutate(id string, fn func(*models.Handoff) error) error {
	path, stealth, err := s.locate(id)
	if err != nil {
		return err
	}

	fl, err := lock.Acquire(path+".lock", s.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	handoffs, err := s.parseFile(path, stealth)
	if err != nil {
		return err
	}
	found := false
	for _, h := range handoffs {
		if h.ID == id {
			if err := fn(h); err != nil {
				return err
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("handoff %s: %w", id, errs.ErrNotFound)
	}
	return s.write(path, handoffs, stealth)
}

func (s *Store) locate(id string) (path string, stealth bool, err error) {
	if shared, e := s.parseFile(s.SharedPath, false); e == nil && containsID(shared, id) {
		return s.SharedPath, false, nil
	}
	if local, e := s.parseFile(s.StealthPath, true); e == nil && containsID(local, id) {
		return s.StealthPath, true, nil
	}
	return "", false, fmt.Errorf("handoff %s: %w", id, errs.ErrNotFound)
}

func (s *Store) load(path string, stealth bool) ([]*models.Handoff, error) {
	return s.parseFile(path, stealth)
}

func (s *Store) parseFile(path string, stealth bool) ([]*models.Handoff, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	defer f.Close()
	return Parse(f, stealth)
}

func (s *Store) write(path string, handoffs []*models.Handoff, stealth bool) error {
	content := Serialize(handoffs, stealth)
	if err := atomicfile.Write(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}

func containsID(handoffs []*models.Handoff, id string) bool {
	for _, h := range handoffs {
		if h.ID == id {
			return true
		}
	}
	return false
}
