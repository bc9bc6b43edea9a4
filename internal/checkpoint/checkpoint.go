// Package checkpoint implements C5 CheckpointStore: per-session transcript
// byte offsets and the session->handoff link, persisted as JSON
// (spec.md §4.5).
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pbrown/claude-recall/internal/atomicfile"
	"github.com/pbrown/claude-recall/internal/errs"
	"github.com/pbrown/claude-recall/internal/lock"
)

// maxCleanupSamples bounds how many stale entries a single Cleanup call
// inspects, per spec.md §4.5.
const maxCleanupSamples = 10

const staleAfter = 7 * 24 * time.Hour

// offsetEntry is one session's transcript position. UpdatedAt backs the
// opportunistic cleanup rule ("mappings older than 7 days").
type offsetEntry struct {
	Offset         int64     `json:"offset"`
	TranscriptPath string    `json:"transcript_path"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type sessionHandoffEntry struct {
	HandoffID      string    `json:"handoff_id"`
	TranscriptPath string    `json:"transcript_path"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store is the JSON-backed CheckpointStore. OffsetsPath is
// transcript_offsets.json; LinksPath is session-handoffs.json
// (both under $CLAUDE_RECALL_STATE per spec.md §6's file layout).
type Store struct {
	OffsetsPath string
	LinksPath   string
	LockTimeout time.Duration
}

// NewStore builds a Store rooted at the given state directory.
func NewStore(stateDir string) *Store {
	return &Store{
		OffsetsPath: stateDir + "/transcript_offsets.json",
		LinksPath:   stateDir + "/session-handoffs.json",
		LockTimeout: lock.DefaultTimeout,
	}
}

func (s *Store) lockTimeout() time.Duration {
	if s.LockTimeout <= 0 {
		return lock.DefaultTimeout
	}
	return s.LockTimeout
}

// GetOffset returns the byte offset and transcript path for sessionID, or
// (0, "") if absent. A corrupt checkpoint file is treated as empty rather
// than returned as an error (spec.md §8: fatal errors reset state to
// empty and continue).
func (s *Store) GetOffset(sessionID string) (int64, string) {
	entries := s.readOffsets()
	e, ok := entries[sessionID]
	if !ok {
		return 0, ""
	}
	return e.Offset, e.TranscriptPath
}

// SetOffset atomically records the new byte offset for sessionID.
func (s *Store) SetOffset(sessionID string, offset int64, transcriptPath string) error {
	fl, err := lock.Acquire(s.OffsetsPath+".lock", s.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	entries := s.readOffsets()
	entries[sessionID] = offsetEntry{Offset: offset, TranscriptPath: transcriptPath, UpdatedAt: time.Now()}
	return s.writeOffsets(entries)
}

// GetHandoffForSession returns the handoff ID linked to sessionID, or "".
func (s *Store) GetHandoffForSession(sessionID string) string {
	entries := s.readLinks()
	e, ok := entries[sessionID]
	if !ok {
		return ""
	}
	return e.HandoffID
}

// SetHandoffForSession links sessionID to handoffID atomically.
func (s *Store) SetHandoffForSession(sessionID, handoffID, transcriptPath string) error {
	fl, err := lock.Acquire(s.LinksPath+".lock", s.lockTimeout())
	if err != nil {
		return err
	}
	defer fl.Release()

	entries := s.readLinks()
	entries[sessionID] = sessionHandoffEntry{HandoffID: handoffID, TranscriptPath: transcriptPath, UpdatedAt: time.Now()}
	return s.writeLinks(entries)
}

// RecentActivity reports whether any checkpoint entry was updated after
// since. The decay engine does not call it; it gates on the
// sessions_since_run counter in decay-state.json.
func (s *Store) RecentActivity(since time.Time) bool {
	for _, e := range s.readOffsets() {
		if e.UpdatedAt.After(since) {
			return true
		}
	}
	return false
}

// Cleanup removes offset and link entries older than 7 days whose
// transcript file no longer exists, sampling at most 10 entries per call
// to bound cost (spec.md §4.5). Returns the number removed.
func (s *Store) Cleanup() (int, error) {
	removed := 0

	fl, err := lock.Acquire(s.OffsetsPath+".lock", s.lockTimeout())
	if err != nil {
		return 0, err
	}
	entries := s.readOffsets()
	candidates := staleCandidates(offsetKeys(entries), entries)
	for _, sid := range candidates {
		e := entries[sid]
		if _, statErr := os.Stat(e.TranscriptPath); os.IsNotExist(statErr) {
			delete(entries, sid)
			removed++
		}
	}
	if err := s.writeOffsets(entries); err != nil {
		fl.Release()
		return removed, err
	}
	fl.Release()

	fl2, err := lock.Acquire(s.LinksPath+".lock", s.lockTimeout())
	if err != nil {
		return removed, err
	}
	defer fl2.Release()
	links := s.readLinks()
	linkCandidates := staleLinkCandidates(links)
	for _, sid := range linkCandidates {
		e := links[sid]
		if _, statErr := os.Stat(e.TranscriptPath); os.IsNotExist(statErr) {
			delete(links, sid)
			removed++
		}
	}
	if err := s.writeLinks(links); err != nil {
		return removed, err
	}

	return removed, nil
}

func offsetKeys(entries map[string]offsetEntry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return keys
}

func staleCandidates(keys []string, entries map[string]offsetEntry) []string {
	cutoff := time.Now().Add(-staleAfter)
	var stale []string
	for _, k := range keys {
		if entries[k].UpdatedAt.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	sort.Strings(stale)
	if len(stale) > maxCleanupSamples {
		stale = stale[:maxCleanupSamples]
	}
	return stale
}

func staleLinkCandidates(entries map[string]sessionHandoffEntry) []string {
	cutoff := time.Now().Add(-staleAfter)
	var stale []string
	for k, e := range entries {
		if e.UpdatedAt.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	sort.Strings(stale)
	if len(stale) > maxCleanupSamples {
		stale = stale[:maxCleanupSamples]
	}
	return stale
}

func (s *Store) readOffsets() map[string]offsetEntry {
	entries := map[string]offsetEntry{}
	data, err := os.ReadFile(s.OffsetsPath)
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return map[string]offsetEntry{}
	}
	return entries
}

func (s *Store) writeOffsets(entries map[string]offsetEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal offsets: %w", err)
	}
	if err := atomicfile.Write(s.OffsetsPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}

func (s *Store) readLinks() map[string]sessionHandoffEntry {
	entries := map[string]sessionHandoffEntry{}
	data, err := os.ReadFile(s.LinksPath)
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return map[string]sessionHandoffEntry{}
	}
	return entries
}

func (s *Store) writeLinks(entries map[string]sessionHandoffEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session-handoff links: %w", err)
	}
	if err := atomicfile.Write(s.LinksPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIO, err)
	}
	return nil
}
