package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/docredact/internal/redact"
	"github.com/google/uuid"
)

// JobStatus represents the state of a redaction job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusParsing   JobStatus = "parsing"
	StatusRedacting JobStatus = "redacting"
	StatusEncoding  JobStatus = "encoding"
	StatusStoring   JobStatus = "storing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the state of a single document redaction.
type Job struct {
	mu sync.Mutex

	ID       string
	UserID   string
	Filename string
	Title    string
	Seed     uint64 // 0 picks the worker default

	Status    JobStatus
	Phase     string
	Progress  Progress
	Artifact  *ArtifactInfo
	CreatedAt time.Time
	UpdatedAt time.Time

	// Internal: not serialized.
	fileData []byte
	output   []byte
	errors   []string
}

// Progress carries the redaction counters and any errors.
type Progress struct {
	redact.Stats
	Errors []string `json:"errors"`
}

// ArtifactInfo describes the encoded copy of a finished job.
type ArtifactInfo struct {
	Name        string   `json:"name"`
	ContentType string   `json:"content_type"`
	Size        int      `json:"size"`
	Locations   []string `json:"locations"`
}

// NewJob creates a queued job holding the uploaded bytes. Job ids are
// UUIDv7, so they sort by creation time.
func NewJob(userID, filename, title string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Filename:  filename,
		Title:     title,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL. Jobs still in
// flight are kept regardless of age.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// Fail records err and marks the job failed in phase.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.Progress.Errors = j.errors
	j.Status = StatusFailed
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error without changing the status.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetStats records the redaction counters.
func (j *Job) SetStats(s redact.Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Stats = s
	j.UpdatedAt = time.Now()
}

// SetTitle sets the title if none was given at submission.
func (j *Job) SetTitle(title string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Title == "" {
		j.Title = title
	}
}

// FileData returns the raw upload bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// SetOutput stores the encoded copy and releases the upload bytes.
func (j *Job) SetOutput(name, contentType string, data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.output = data
	j.fileData = nil
	j.Artifact = &ArtifactInfo{Name: name, ContentType: contentType, Size: len(data)}
	j.UpdatedAt = time.Now()
}

// AddLocation records where a sink stored the copy.
func (j *Job) AddLocation(loc string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Artifact != nil {
		j.Artifact.Locations = append(j.Artifact.Locations, loc)
	}
	j.UpdatedAt = time.Now()
}

// Output returns the encoded copy once the job has completed.
func (j *Job) Output() (ArtifactInfo, []byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusCompleted || j.Artifact == nil {
		return ArtifactInfo{}, nil, false
	}
	return *j.Artifact, j.output, true
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string        `json:"job_id"`
	UserID    string        `json:"user_id"`
	Status    JobStatus     `json:"status"`
	Phase     string        `json:"phase"`
	Filename  string        `json:"filename"`
	Title     string        `json:"title"`
	Progress  Progress      `json:"progress"`
	Artifact  *ArtifactInfo `json:"artifact,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	var art *ArtifactInfo
	if j.Artifact != nil {
		a := *j.Artifact
		a.Locations = append([]string{}, j.Artifact.Locations...)
		art = &a
	}
	return JobSnapshot{
		ID:        j.ID,
		UserID:    j.UserID,
		Status:    j.Status,
		Phase:     j.Phase,
		Filename:  j.Filename,
		Title:     j.Title,
		Progress:  Progress{Stats: j.Progress.Stats, Errors: errs},
		Artifact:  art,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
