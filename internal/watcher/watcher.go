// Package watcher turns audio files dropped into a hot folder into
// audio-summary runs.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/audio"
	"github.com/snarg/audiocast/internal/metrics"
	"github.com/snarg/audiocast/internal/pipeline"
	"github.com/snarg/audiocast/internal/storage"
)

var errEmptyFile = errors.New("empty file")

const (
	debounce  = 500 * time.Millisecond
	doneDir   = "done"
	failedDir = "failed"
)

// Runner is satisfied by *pipeline.Controller.
type Runner interface {
	StartSummary(req pipeline.SummaryRequest) (pipeline.Snapshot, error)
	Wait(ctx context.Context, runID string) (pipeline.Snapshot, error)
}

// Job is one inbox file waiting for a worker.
type Job struct {
	Path   string
	Queued time.Time
}

// Stats reports the current state of the inbox queue.
type Stats struct {
	Pending   int   `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

type Options struct {
	Dir       string
	UserID    string
	Locale    string
	Workers   int
	QueueSize int
	Assets    storage.AssetStore
	Runs      Runner
	Log       zerolog.Logger
}

// Watcher watches Options.Dir (not recursively) and feeds new audio files
// to a fixed pool of workers.
type Watcher struct {
	opts Options
	log  zerolog.Logger

	fs     *fsnotify.Watcher
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closed guards jobs against sends after Stop.
	mu     sync.RWMutex
	closed bool

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// queued holds paths between Enqueue and the move out of the inbox.
	queuedMu sync.Mutex
	queued   map[string]bool

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func New(opts Options) *Watcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	return &Watcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		jobs:           make(chan Job, opts.QueueSize),
		debounceTimers: make(map[string]*time.Timer),
		queued:         make(map[string]bool),
	}
}

// Start creates the done and failed folders, starts the workers and queues
// audio files already sitting in the inbox.
func (w *Watcher) Start(ctx context.Context) error {
	for _, sub := range []string{doneDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(w.opts.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox folder: %w", err)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.opts.Dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.opts.Dir, err)
	}
	w.fs = fw
	w.ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.opts.Workers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	go w.watchLoop()

	queued := w.scanExisting()
	w.log.Info().
		Str("dir", w.opts.Dir).
		Int("workers", w.opts.Workers).
		Int("queue_size", w.opts.QueueSize).
		Int("existing", queued).
		Msg("inbox watcher started")
	return nil
}

// Stop closes the fsnotify watcher, cancels in-flight runs and waits for
// the workers. Files whose runs were interrupted stay in the inbox.
func (w *Watcher) Stop() {
	if w.fs != nil {
		w.fs.Close()
	}

	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		t.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info().
		Int64("completed", w.completed.Load()).
		Int64("failed", w.failed.Load()).
		Int64("dropped", w.dropped.Load()).
		Msg("inbox watcher stopped")
}

// Enqueue adds a job to the queue. Returns false if the queue is full or
// the watcher has stopped.
func (w *Watcher) Enqueue(j Job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- j:
		return true
	default:
		return false
	}
}

func (w *Watcher) Stats() Stats {
	return Stats{
		Pending:   len(w.jobs),
		Completed: w.completed.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
	}
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule debounces a path so a file still being written is queued once,
// after writes have stopped.
func (w *Watcher) schedule(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(debounce)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(debounce, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()
		w.submit(path)
	})
}

func (w *Watcher) submit(path string) {
	if _, err := os.Stat(path); err != nil {
		// Moved or deleted before the debounce fired.
		return
	}
	w.queuedMu.Lock()
	if w.queued[path] {
		w.queuedMu.Unlock()
		return
	}
	w.queued[path] = true
	w.queuedMu.Unlock()

	if !w.Enqueue(Job{Path: path, Queued: time.Now()}) {
		w.release(path)
		w.dropped.Add(1)
		metrics.InboxFilesTotal.WithLabelValues("dropped").Inc()
		w.log.Warn().Str("path", path).Msg("inbox queue full, file left in place")
	}
}

func (w *Watcher) scanExisting() int {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to list inbox")
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !isAudioFile(e.Name()) {
			continue
		}
		w.submit(filepath.Join(w.opts.Dir, e.Name()))
		n++
	}
	return n
}

func (w *Watcher) worker(id int) {
	defer w.wg.Done()
	log := w.log.With().Int("worker", id).Logger()

	for job := range w.jobs {
		runID, err := w.process(job)
		switch {
		case err == nil:
			w.completed.Add(1)
			metrics.InboxFilesTotal.WithLabelValues("completed").Inc()
			w.move(job.Path, doneDir)
			log.Info().Str("path", job.Path).Str("run_id", runID).Msg("inbox file summarized")
		case w.ctx.Err() != nil:
			log.Info().Str("path", job.Path).Msg("inbox file interrupted by shutdown")
		default:
			w.failed.Add(1)
			metrics.InboxFilesTotal.WithLabelValues("failed").Inc()
			w.move(job.Path, failedDir)
			log.Warn().Err(err).Str("path", job.Path).Str("run_id", runID).Msg("inbox file failed")
		}
		w.release(job.Path)
	}
}

func (w *Watcher) release(path string) {
	w.queuedMu.Lock()
	delete(w.queued, path)
	w.queuedMu.Unlock()
}

// process uploads one file and waits for its summary run to finish.
func (w *Watcher) process(job Job) (string, error) {
	data, err := os.ReadFile(job.Path)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return "", errEmptyFile
	}

	ext := filepath.Ext(job.Path)
	key := storage.UploadKey(w.opts.UserID, job.Queued, ext)
	if err := w.opts.Assets.Save(w.ctx, key, data, audio.ContentTypeFromExt(ext)); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	url, err := w.opts.Assets.URL(w.ctx, key)
	if err != nil {
		return "", fmt.Errorf("upload url: %w", err)
	}

	snap, err := w.opts.Runs.StartSummary(pipeline.SummaryRequest{
		UserID:   w.opts.UserID,
		AudioURL: url,
		Locale:   w.opts.Locale,
	})
	if err != nil {
		return "", err
	}
	final, err := w.opts.Runs.Wait(w.ctx, snap.ID)
	if err != nil {
		return snap.ID, err
	}
	if final.Phase != pipeline.PhaseComplete {
		if final.Failure != nil {
			return snap.ID, fmt.Errorf("%s: %s", final.Failure.Code, final.Failure.Message)
		}
		return snap.ID, fmt.Errorf("run ended in phase %s", final.Phase)
	}
	return snap.ID, nil
}

func (w *Watcher) move(path, sub string) {
	dest := filepath.Join(w.opts.Dir, sub, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = fmt.Sprintf("%s-%d%s", dest[:len(dest)-len(ext)], time.Now().UnixNano(), ext)
	}
	if err := os.Rename(path, dest); err != nil {
		w.log.Warn().Err(err).Str("path", path).Str("dest", dest).Msg("failed to move inbox file")
	}
}

func isAudioFile(name string) bool {
	return audio.IsSupportedExt(filepath.Ext(name))
}
