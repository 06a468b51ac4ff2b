package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"rulecluster/pkg/logx"
)

const compactEvery = 1000

// fileStore keeps two append-only JSON Lines files:
//   - <prefix>.audit.jsonl
//   - <prefix>.probes.jsonl (compacted down to the in-memory window)
type fileStore struct {
	log  logx.Logger
	keep int

	mu sync.Mutex

	auditFile *os.File

	probePath   string
	probeFile   *os.File
	probes      map[string][]ProbeRecord // oldest first
	probeWrites int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:       log,
		keep:      keepProbes(cfg),
		auditFile: af,
		probePath: prefix + ".probes.jsonl",
		probes:    map[string][]ProbeRecord{},
	}
	if err := s.replayProbes(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("probe journal replay failed", logx.Err(err))
	}
	pf, err := os.OpenFile(s.probePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	s.probeFile = pf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.probeFile != nil {
		err2 = s.probeFile.Close()
		s.probeFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) AppendProbe(ctx context.Context, r ProbeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeFile == nil {
		return errors.New("probe journal closed")
	}
	if err := json.NewEncoder(s.probeFile).Encode(r); err != nil {
		return err
	}
	s.remember(r)
	s.probeWrites++
	if s.probeWrites%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("probe journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentProbes(ctx context.Context, schedulerID string, limit int) ([]ProbeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.probes[schedulerID]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]ProbeRecord, 0, limit)
	for i := len(ring) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ring[i])
	}
	return out, nil
}

func (s *fileStore) remember(r ProbeRecord) {
	ring := append(s.probes[r.SchedulerID], r)
	if len(ring) > s.keep {
		ring = slices.Clone(ring[len(ring)-s.keep:])
	}
	s.probes[r.SchedulerID] = ring
}

func (s *fileStore) replayProbes() error {
	f, err := os.Open(s.probePath)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r ProbeRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.SchedulerID == "" {
			continue
		}
		s.remember(r)
	}
	return sc.Err()
}

// compactLocked rewrites the journal with the in-memory window only.
func (s *fileStore) compactLocked() error {
	tmp := s.probePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, id := range slices.Sorted(maps.Keys(s.probes)) {
		for _, r := range s.probes[id] {
			if err := enc.Encode(r); err != nil {
				_ = f.Close()
				return err
			}
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.probePath); err != nil {
		return err
	}
	_ = s.probeFile.Close()
	s.probeFile, err = os.OpenFile(s.probePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	return err
}
