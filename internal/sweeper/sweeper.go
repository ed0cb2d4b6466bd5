// Package sweeper removes expired sessions and the files they leave behind.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/session"
)

// DefaultOrphanAge is how old an unowned work file must be before it is
// removed.
const DefaultOrphanAge = 24 * time.Hour

// Dirs are the workspace directories swept for orphans.
type Dirs struct {
	Exports string
	Imports string
	Tmp     string
}

// Report summarizes one sweep.
type Report struct {
	Sessions int      `json:"sessions"`
	Removed  []string `json:"removed"`
	Failed   []string `json:"failed,omitempty"`
}

// Sweeper purges expired sessions from a store and removes what they owned.
type Sweeper struct {
	store     session.Store
	dirs      Dirs
	orphanAge time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// New returns a Sweeper. A non-positive orphanAge selects DefaultOrphanAge.
func New(store session.Store, dirs Dirs, orphanAge time.Duration, log *zap.Logger) *Sweeper {
	if orphanAge <= 0 {
		orphanAge = DefaultOrphanAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, dirs: dirs, orphanAge: orphanAge, log: log, now: time.Now}
}

// Sweep runs one pass: expired sessions first, then orphaned work files.
// Failures to remove individual paths are reported, not returned.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	now := s.now().UTC()
	expired, err := s.store.Expired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}

	rep := &Report{Sessions: len(expired), Removed: []string{}}
	for _, rec := range expired {
		paths, err := rec.Paths()
		if err != nil {
			s.log.Warn("undecodable session payload", zap.String("kind", rec.Kind), zap.String("token", rec.Token), zap.Error(err))
			continue
		}
		for _, p := range paths {
			s.remove(rep, p)
		}
		s.log.Info("expired session swept", zap.String("kind", rec.Kind), zap.String("operator", rec.Operator), zap.String("token", rec.Token))
	}

	cutoff := now.Add(-s.orphanAge)
	s.sweepDir(ctx, rep, s.dirs.Imports, cutoff, func(name string, dir bool) bool {
		return dir && strings.HasPrefix(name, "import-")
	})
	s.sweepDir(ctx, rep, s.dirs.Tmp, cutoff, func(name string, dir bool) bool {
		return dir && strings.HasPrefix(name, "export-")
	})
	// Finished exports are zips; only unfinished flat files are orphans.
	s.sweepDir(ctx, rep, s.dirs.Exports, cutoff, func(name string, dir bool) bool {
		return !dir && strings.HasPrefix(name, "porter-export-") && strings.HasSuffix(name, ".json")
	})
	return rep, nil
}

func (s *Sweeper) sweepDir(ctx context.Context, rep *Report, dir string, cutoff time.Time, match func(string, bool) bool) {
	if dir == "" || ctx.Err() != nil {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("reading work directory", zap.String("dir", dir), zap.Error(err))
		}
		return
	}
	for _, e := range entries {
		if !match(e.Name(), e.IsDir()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		s.remove(rep, filepath.Join(dir, e.Name()))
	}
}

func (s *Sweeper) remove(rep *Report, path string) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		s.log.Warn("removing swept path", zap.String("path", path), zap.Error(err))
		rep.Failed = append(rep.Failed, path)
		return
	}
	rep.Removed = append(rep.Removed, path)
}

// Watch sweeps on the cron schedule until ctx is done. Runs never
// overlap; a run still going when the next is due is skipped.
func (s *Sweeper) Watch(ctx context.Context, schedule string, onReport func(*Report)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		rep, err := s.Sweep(ctx)
		if err != nil {
			s.log.Error("sweep failed", zap.Error(err))
			return
		}
		if onReport != nil {
			onReport(rep)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.log.Info("sweeper started", zap.String("schedule", schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("sweeper stopped")
	return nil
}
