package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
)

// Sweeper fails pipeline entities stuck past their deadline
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Options configures the scheduler
type Options struct {
	TempDir       string
	Interval      time.Duration
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// Scheduler removes stale temp uploads and periodically sweeps stuck stages
type Scheduler struct {
	opts     Options
	sweeper  Sweeper
	log      *logger.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new cleanup scheduler. sweeper may be nil.
func NewScheduler(opts Options, sweeper Sweeper, log *logger.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	return &Scheduler{
		opts:     opts,
		sweeper:  sweeper,
		log:      log.Component("cleanup"),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs an initial cleanup and then both loops in the background
func (s *Scheduler) Start() {
	s.log.Info("Running initial temp file cleanup...")
	s.CleanOldFiles()

	s.wg.Add(1)
	go s.loop(s.opts.Interval, func() { s.CleanOldFiles() })

	if s.sweeper != nil {
		s.wg.Add(1)
		go s.loop(s.opts.SweepInterval, s.sweep)
	}

	s.log.WithFields(logrus.Fields{
		"interval":       s.opts.Interval,
		"max_age":        s.opts.MaxAge,
		"sweep_interval": s.opts.SweepInterval,
	}).Info("Cleanup scheduler started")
}

// Stop stops both loops and waits for them to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.log.Info("Cleanup scheduler stopped")
}

func (s *Scheduler) loop(every time.Duration, run func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			run()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SweepInterval)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.log.WithError(err).Error("Stage sweep failed")
	}
}

// CleanOldFiles removes files older than MaxAge from the temp directory and
// returns how many it deleted
func (s *Scheduler) CleanOldFiles() int {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(s.opts.TempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.opts.MaxAge {
			return nil
		}
		size := info.Size()
		if err := os.Remove(path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("Failed to delete old file")
			return nil
		}
		deletedCount++
		deletedSize += size
		s.log.WithFields(logrus.Fields{
			"file":    filepath.Base(path),
			"age":     age.Round(time.Minute),
			"size_kb": size / 1024,
		}).Debug("Deleted old temp file")
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("Error during cleanup")
	}

	if deletedCount > 0 {
		s.log.Infof("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
	return deletedCount
}

// EnsureDir creates a working directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
