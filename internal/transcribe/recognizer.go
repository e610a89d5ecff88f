package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/metrics"
	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/transcript"
)

var (
	ErrUnsupportedLocale   = errors.New("unsupported locale")
	ErrNoAudio             = errors.New("audio url is required")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 10 * time.Minute
)

// CreditChecker answers the pre-flight balance question.
type CreditChecker interface {
	HasCredits(ctx context.Context, userID string, amount int64) (bool, error)
}

// Route binds a locale to exactly one provider family.
type Route struct {
	Sync  SyncProvider
	Async AsyncProvider
}

func (r Route) name() string {
	if r.Sync != nil {
		return r.Sync.Name()
	}
	if r.Async != nil {
		return r.Async.Name()
	}
	return ""
}

type RecognizerOptions struct {
	Routes       map[string]Route
	Credits      CreditChecker
	PollInterval time.Duration
	MaxWait      time.Duration
	Parser       *transcript.Parser
	Log          zerolog.Logger
}

// Recognizer selects a provider by locale and drives it to a completed
// transcript, polling asynchronous providers on a fixed interval.
type Recognizer struct {
	routes       map[string]Route
	credits      CreditChecker
	pollInterval time.Duration
	maxWait      time.Duration
	parser       *transcript.Parser
	log          zerolog.Logger

	after func(time.Duration) <-chan time.Time
}

func NewRecognizer(opts RecognizerOptions) *Recognizer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Parser == nil {
		opts.Parser = transcript.NewParser()
	}
	return &Recognizer{
		routes:       opts.Routes,
		credits:      opts.Credits,
		pollInterval: opts.PollInterval,
		maxWait:      opts.MaxWait,
		parser:       opts.Parser,
		log:          opts.Log,
		after:        time.After,
	}
}

// Job tracks one recognition request. For synchronous providers Result is
// already completed when Submit returns.
type Job struct {
	Provider    string
	Locale      string
	TaskID      string
	SubmittedAt time.Time
	Result      *transcript.Result
}

// Locales lists the locales that have a provider route.
func (r *Recognizer) Locales() []string {
	out := make([]string, 0, len(r.routes))
	for l := range r.routes {
		out = append(out, l)
	}
	return out
}

func (r *Recognizer) route(locale string) (Route, string, bool) {
	if rt, ok := r.routes[locale]; ok {
		return rt, locale, true
	}
	// "en-US" falls back to "en"
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		base := strings.ToLower(locale[:i])
		if rt, ok := r.routes[base]; ok {
			return rt, base, true
		}
	}
	return Route{}, "", false
}

// Submit validates the request, checks credits and starts recognition.
func (r *Recognizer) Submit(ctx context.Context, req Request) (*Job, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		return nil, ErrNoAudio
	}
	rt, locale, ok := r.route(req.Locale)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocale, req.Locale)
	}
	req.Locale = locale

	if req.RequiredCredits > 0 && r.credits != nil {
		ok, err := r.credits.HasCredits(ctx, req.UserID, req.RequiredCredits)
		if err != nil {
			return nil, fmt.Errorf("check credits: %w", err)
		}
		if !ok {
			return nil, ErrInsufficientBalance
		}
	}

	job := &Job{Provider: rt.name(), Locale: locale, SubmittedAt: time.Now()}
	log := r.log.With().Str("provider", job.Provider).Str("locale", locale).Logger()

	if rt.Sync != nil {
		start := time.Now()
		res, err := rt.Sync.Recognize(ctx, req)
		metrics.ObserveProvider(job.Provider, "recognize", start, err)
		if err != nil {
			log.Warn().Err(err).Msg("recognition failed")
			return nil, err
		}
		job.Result = res
		log.Info().
			Int("segments", len(res.Segments)).
			Float64("duration", res.Duration).
			Dur("elapsed", time.Since(start)).
			Msg("recognition completed")
		return job, nil
	}

	start := time.Now()
	taskID, err := rt.Async.Submit(ctx, req)
	metrics.ObserveProvider(job.Provider, "submit", start, err)
	if err != nil {
		log.Warn().Err(err).Msg("recognition submit failed")
		return nil, err
	}
	job.TaskID = taskID
	job.Result = transcript.Processing(job.Provider)
	log.Info().Str("task_id", taskID).Msg("recognition task submitted")
	return job, nil
}

// Check performs one status request for an asynchronous job and updates
// job.Result. A failed task is returned as an error.
func (r *Recognizer) Check(ctx context.Context, job *Job) (*transcript.Result, error) {
	if job.Result != nil && job.Result.Status == transcript.StatusCompleted {
		return job.Result, nil
	}
	rt, _, ok := r.route(job.Locale)
	if !ok || rt.Async == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLocale, job.Locale)
	}

	start := time.Now()
	st, err := rt.Async.Status(ctx, job.TaskID)
	metrics.ObserveProvider(job.Provider, "status", start, err)
	metrics.RecognitionPollsTotal.WithLabelValues(job.Provider).Inc()
	if err != nil {
		return nil, err
	}

	switch st.State {
	case TaskSucceeded:
		job.Result = transcript.Completed(r.parser.Parse(st.Markup), st.Duration, job.Provider)
		return job.Result, nil
	case TaskFailed:
		job.Result = &transcript.Result{Status: transcript.StatusFailed, Segments: []transcript.Segment{}, Provider: job.Provider}
		if st.Err == nil {
			st.Err = &provider.Error{Provider: job.Provider, Operation: "status", Category: provider.Unknown, Message: "task failed"}
		}
		return job.Result, st.Err
	default:
		job.Result = transcript.Processing(job.Provider)
		return job.Result, nil
	}
}

// Await polls an asynchronous job every poll interval, starting one
// interval after submission, until it completes, fails, the context ends,
// or the maximum wait elapses. The timeout is reported as a transient
// provider failure.
func (r *Recognizer) Await(ctx context.Context, job *Job) (*transcript.Result, error) {
	if job.Result != nil && job.Result.Status == transcript.StatusCompleted {
		return job.Result, nil
	}
	log := r.log.With().Str("provider", job.Provider).Str("task_id", job.TaskID).Logger()

	for waited := r.pollInterval; waited <= r.maxWait; waited += r.pollInterval {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.after(r.pollInterval):
		}

		res, err := r.Check(ctx, job)
		if err != nil {
			log.Warn().Err(err).Dur("waited", waited).Msg("recognition task failed")
			return nil, err
		}
		if res.Status == transcript.StatusCompleted {
			log.Info().Int("segments", len(res.Segments)).Dur("waited", waited).Msg("recognition completed")
			return res, nil
		}
		log.Debug().Dur("waited", waited).Msg("recognition still processing")
	}

	return nil, &provider.Error{
		Provider:  job.Provider,
		Operation: "status",
		Category:  provider.TransientNetwork,
		Message:   fmt.Sprintf("task %s not finished after %s", job.TaskID, r.maxWait),
	}
}

// Recognize runs Submit then Await.
func (r *Recognizer) Recognize(ctx context.Context, req Request) (*transcript.Result, error) {
	job, err := r.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.Await(ctx, job)
}
