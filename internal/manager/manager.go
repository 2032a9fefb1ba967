// Package manager tracks background area downloads started over the
// HTTP API so clients can poll progress and cancel.
package manager

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hikemate/trailpack/internal/downloader"
	"github.com/hikemate/trailpack/internal/store"
	"github.com/hikemate/trailpack/pkg/config"
	"github.com/hikemate/trailpack/pkg/logger"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Snapshot is the externally visible state of one download job.
type Snapshot struct {
	ID        string              `json:"id"`
	TrailID   string              `json:"trail_id"`
	Status    Status              `json:"status"`
	Progress  downloader.Progress `json:"progress"`
	Report    *downloader.Report  `json:"report,omitempty"`
	Error     string              `json:"error,omitempty"`
	StartedAt time.Time           `json:"started_at"`
}

type job struct {
	mu         sync.Mutex
	snapshot   Snapshot
	downloader *downloader.AreaDownloader
}

func (j *job) setProgress(p downloader.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshot.Progress = p
}

func (j *job) finish(report downloader.Report, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.snapshot.Report = &report
	switch {
	case err == nil:
		j.snapshot.Status = StatusCompleted
	case errors.Is(err, context.Canceled):
		j.snapshot.Status = StatusCancelled
	default:
		j.snapshot.Status = StatusFailed
		j.snapshot.Error = err.Error()
	}
}

func (j *job) view() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshot
}

// Manager owns one downloader per job. Jobs are kept in memory for the
// lifetime of the process; the tiles they cached outlive them.
type Manager struct {
	store  store.Store
	cfg    config.Downloader
	client *http.Client
	logger logger.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

func New(s store.Store, cfg config.Downloader, l logger.Logger) *Manager {
	return &Manager{
		store:  s,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: l,
		jobs:   make(map[string]*job),
	}
}

// Start launches a background download and returns its job id.
func (m *Manager) Start(req downloader.Request) string {
	id := uuid.NewString()

	j := &job{
		snapshot: Snapshot{
			ID:        id,
			TrailID:   req.TrailID,
			Status:    StatusRunning,
			StartedAt: time.Now(),
		},
	}

	j.downloader = downloader.New(m.store,
		downloader.WithTileURL(m.cfg.TileURL),
		downloader.WithSource(m.cfg.Source),
		downloader.WithUserAgent(m.cfg.UserAgent),
		downloader.WithBatchSize(m.cfg.BatchSize),
		downloader.WithHTTPClient(m.client),
		downloader.WithLogger(m.logger),
		downloader.WithProgress(j.setProgress),
	)

	m.mu.Lock()
	m.jobs[id] = j
	m.mu.Unlock()

	go func() {
		report, err := j.downloader.DownloadArea(context.Background(), req)
		j.finish(report, err)
		if err != nil {
			m.logger.Warn("download job ended with error", "job_id", id, "error", err)
			return
		}
		m.logger.Info("download job completed", "job_id", id, "trail_id", req.TrailID)
	}()

	return id
}

// Get returns the current snapshot of a job.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return j.view(), true
}

// Cancel requests cooperative cancellation of a running job.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	j.downloader.Cancel()
	return true
}
