package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/audio"
	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/metrics"
	"github.com/snarg/audiocast/internal/storage"
	"github.com/snarg/audiocast/internal/summarize"
	"github.com/snarg/audiocast/internal/transcribe"
	"github.com/snarg/audiocast/internal/voice"
)

// CreditChecker is consulted before synthesis starts.
type CreditChecker interface {
	HasCredits(ctx context.Context, userID string, amount int64) (bool, error)
}

type Options struct {
	Recognizer Recognizer
	Summarizer Summarizer
	Scripts    ScriptGenerator
	Voices     VoiceSynthesizer
	Ledger     Ledger
	Credits    CreditChecker // optional
	Records    RecordStore
	Assets     AssetStore
	Publisher  Publisher // optional
	Notifier   Notifier  // optional
	Pricing    Pricing
	Launcher   *Launcher
	Log        zerolog.Logger
}

// Controller owns the run state machines. It is the only component that
// decides user-visible failures and the only one that touches the ledger.
type Controller struct {
	opts Options
	runs *Registry
	log  zerolog.Logger
}

func NewController(opts Options) *Controller {
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Launcher == nil {
		opts.Launcher = NewLauncher(context.Background(), opts.Log)
	}
	return &Controller{
		opts: opts,
		runs: NewRegistry(),
		log:  opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

type SummaryRequest struct {
	UserID          string
	AudioURL        string
	Locale          string
	RequiredCredits int64
}

type PodcastRequest struct {
	UserID string
	Text   string
	Locale string
}

// Get returns a snapshot of a run owned by userID.
func (c *Controller) Get(runID, userID string) (Snapshot, error) {
	return c.runs.Get(runID, userID)
}

// Wait blocks until the run is complete or failed.
func (c *Controller) Wait(ctx context.Context, runID string) (Snapshot, error) {
	return c.runs.Wait(ctx, runID)
}

func (c *Controller) ActiveRuns() map[string]int { return c.runs.ActiveRuns() }

// StartSummary launches the audio-summary flow:
// idle → recognizing → summarizing → complete | failed.
func (c *Controller) StartSummary(req SummaryRequest) (Snapshot, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		return Snapshot{}, transcribe.ErrNoAudio
	}
	rn, snap := c.runs.create(c.opts.Launcher.Context(), FlowAudioSummary, req.UserID, req.Locale)
	c.launch(rn, func() error { return c.runSummary(rn.ctx, snap.ID, req) })
	return snap, nil
}

// StartPodcast launches script generation:
// idle → generating_script → preview. The run then waits in preview for
// EditScript and Synthesize.
func (c *Controller) StartPodcast(req PodcastRequest) (Snapshot, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Snapshot{}, dialogue.ErrEmptySource
	}
	if utf8.RuneCountInString(text) > dialogue.MaxSourceChars {
		return Snapshot{}, dialogue.ErrSourceTooLong
	}
	rn, snap := c.runs.create(c.opts.Launcher.Context(), FlowPodcast, req.UserID, req.Locale)
	if _, err := c.runs.update(snap.ID, "", func(r *run) error {
		r.snap.SourceText = text
		r.snap.Title = Title(text, req.Locale)
		return nil
	}); err != nil {
		return Snapshot{}, err
	}
	c.launch(rn, func() error { return c.runScript(rn.ctx, snap.ID, text, req.Locale) })
	return c.runs.Get(snap.ID, "")
}

// EditScript replaces the script of a run in preview.
func (c *Controller) EditScript(runID, userID string, turns []dialogue.Turn) (Snapshot, error) {
	edited := make([]dialogue.Turn, 0, len(turns))
	for _, t := range turns {
		edited = append(edited, dialogue.Turn{
			Speaker: strings.TrimSpace(t.Speaker),
			Role:    t.Role,
			Content: strings.TrimSpace(t.Content),
		})
	}
	if len(edited) > dialogue.MaxTurns {
		return Snapshot{}, fmt.Errorf("%w: script has %d turns, at most %d allowed", dialogue.ErrParseFailure, len(edited), dialogue.MaxTurns)
	}
	if err := dialogue.ValidateScript(edited); err != nil {
		return Snapshot{}, err
	}

	snap, err := c.runs.update(runID, userID, func(r *run) error {
		if r.snap.Flow != FlowPodcast || r.snap.Phase != PhasePreview {
			return ErrWrongPhase
		}
		r.snap.Turns = edited
		r.providers["script"] = "edited"
		return nil
	})
	if err != nil {
		return snap, err
	}
	c.opts.Publisher.Publish(runID, userID, EventScript, map[string]any{"turns": snap.Turns, "edited": true})
	return snap, nil
}

// Synthesize moves a run from preview to synthesizing and launches voice
// synthesis. A second call for the same run fails with ErrWrongPhase.
func (c *Controller) Synthesize(ctx context.Context, runID, userID string, policy voice.Policy) (Snapshot, error) {
	current, err := c.runs.Get(runID, userID)
	if err != nil {
		return current, err
	}
	if current.Flow != FlowPodcast || current.Phase != PhasePreview {
		return current, ErrWrongPhase
	}
	if c.opts.Credits != nil {
		need := c.opts.Pricing.PodcastCredits(scriptChars(current.Turns))
		ok, err := c.opts.Credits.HasCredits(ctx, userID, need)
		if err != nil {
			return current, fmt.Errorf("check credits: %w", err)
		}
		if !ok {
			return current, database.ErrInsufficientBalance
		}
	}

	var turns []dialogue.Turn
	snap, err := c.runs.update(runID, userID, func(r *run) error {
		if r.snap.Phase != PhasePreview {
			return ErrWrongPhase
		}
		r.snap.Phase = PhaseSynthesizing
		r.snap.Synthesized = 0
		for i := range r.snap.Turns {
			r.snap.Turns[i].VoiceID = ""
			r.snap.Turns[i].Audio = nil
		}
		turns = dialogue.CloneTurns(r.snap.Turns)
		return nil
	})
	if err != nil {
		return snap, err
	}

	rn, _ := c.runs.lookup(runID)
	c.publishPhase(snap)
	c.launch(rn, func() error { return c.runSynthesis(rn.ctx, runID, turns, policy) })
	return snap, nil
}

// Cancel aborts a run. In-flight provider calls and polling observe the
// cancellation through the run's context; a run waiting in preview fails
// immediately.
func (c *Controller) Cancel(runID, userID string) (Snapshot, error) {
	snap, err := c.runs.Get(runID, userID)
	if err != nil {
		return snap, err
	}
	if snap.Phase.Terminal() {
		return snap, ErrWrongPhase
	}
	rn, _ := c.runs.lookup(runID)
	rn.cancel()
	if snap.Phase == PhasePreview || snap.Phase == PhaseIdle {
		c.fail(runID, context.Canceled)
	}
	c.log.Info().Str("run_id", runID).Str("phase", string(snap.Phase)).Msg("run cancelled")
	return c.runs.Get(runID, userID)
}

// StartJanitor periodically cancels previews left idle longer than
// retention and forgets finished runs older than retention.
func (c *Controller) StartJanitor(interval, retention time.Duration) {
	ctx := c.opts.Launcher.Context()
	c.opts.Launcher.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.sweep(now.Add(-retention))
			}
		}
	}, nil)
}

// sweep fails idle previews as cancelled, then prunes finished runs. An
// expired preview is pruned one retention window after it fails.
func (c *Controller) sweep(cutoff time.Time) (expired, pruned int) {
	for _, id := range c.runs.IdlePreviews(cutoff) {
		c.failWith(id, failure(CodeCancelled), errPreviewExpired)
		expired++
	}
	pruned = c.runs.Prune(cutoff)
	if expired > 0 || pruned > 0 {
		c.log.Debug().Int("expired", expired).Int("pruned", pruned).Msg("janitor sweep")
	}
	return expired, pruned
}

// launch runs fn in the background and fails the run on error or panic.
func (c *Controller) launch(rn *run, fn func() error) {
	id := rn.id
	c.opts.Launcher.Go(func() {
		if err := fn(); err != nil {
			c.fail(id, err)
		}
	}, func(v any) {
		c.failWith(id, failure(CodeInternal), fmt.Errorf("panic: %v", v))
	})
}

func (c *Controller) setPhase(id string, phase Phase) (Snapshot, error) {
	snap, err := c.runs.update(id, "", func(r *run) error {
		if r.snap.Phase.Terminal() {
			return ErrWrongPhase
		}
		r.snap.Phase = phase
		return nil
	})
	if err == nil {
		c.publishPhase(snap)
	}
	return snap, err
}

func (c *Controller) publishPhase(s Snapshot) {
	c.opts.Publisher.Publish(s.ID, s.UserID, EventPhase, map[string]any{"phase": s.Phase})
}

func (c *Controller) runSummary(ctx context.Context, id string, req SummaryRequest) error {
	start := time.Now()
	if _, err := c.setPhase(id, PhaseRecognizing); err != nil {
		return err
	}

	job, err := c.opts.Recognizer.Submit(ctx, transcribe.Request{
		AudioURL:        req.AudioURL,
		Locale:          req.Locale,
		UserID:          req.UserID,
		RequiredCredits: req.RequiredCredits,
	})
	if err != nil {
		return err
	}
	if job.TaskID != "" {
		c.opts.Publisher.Publish(id, req.UserID, EventRecognitionSubmitted, map[string]string{
			"provider": job.Provider,
			"task_id":  job.TaskID,
		})
	}

	res, err := c.opts.Recognizer.Await(ctx, job)
	if err != nil {
		return err
	}
	if _, err := c.runs.update(id, "", func(r *run) error {
		r.snap.Transcript = res
		r.snap.Title = Title(res.FullText, req.Locale)
		r.providers["recognition"] = job.Provider
		return nil
	}); err != nil {
		return err
	}
	c.opts.Publisher.Publish(id, req.UserID, EventTranscript, res)

	if _, err := c.setPhase(id, PhaseSummarizing); err != nil {
		return err
	}
	sum, err := c.opts.Summarizer.Summarize(ctx, summarize.Input{
		FullText: res.FullText,
		Segments: res.Segments,
		Locale:   req.Locale,
	})
	if err != nil {
		return err
	}
	snap, err := c.runs.update(id, "", func(r *run) error {
		r.snap.Summary = sum
		r.providers["summary"] = sum.Provider
		return nil
	})
	if err != nil {
		return err
	}
	c.opts.Publisher.Publish(id, req.UserID, EventSummary, sum)

	c.log.Info().
		Str("run_id", id).
		Str("recognition", job.Provider).
		Str("summary", sum.Provider).
		Bool("degraded", sum.Degraded).
		Dur("elapsed", time.Since(start)).
		Msg("summary artifact ready")

	return c.complete(ctx, id, &database.Record{
		UserID:     req.UserID,
		RunID:      id,
		Flow:       string(FlowAudioSummary),
		Locale:     req.Locale,
		Title:      snap.Title,
		Transcript: res,
		Summary:    sum,
	}, c.opts.Pricing.SummaryCredits(res.Duration))
}

func (c *Controller) runScript(ctx context.Context, id, text, locale string) error {
	if _, err := c.setPhase(id, PhaseGeneratingScript); err != nil {
		return err
	}
	script, err := c.opts.Scripts.Generate(ctx, text, locale)
	if err != nil {
		return err
	}

	snap, err := c.runs.update(id, "", func(r *run) error {
		if r.snap.Phase.Terminal() {
			return ErrWrongPhase
		}
		r.snap.Turns = dialogue.CloneTurns(script.Turns)
		r.snap.Phase = PhasePreview
		r.providers["script"] = script.Provider
		return nil
	})
	if err != nil {
		return err
	}
	c.opts.Publisher.Publish(id, snap.UserID, EventScript, map[string]any{
		"turns":   snap.Turns,
		"band":    script.Band,
		"dropped": script.Dropped,
	})
	c.publishPhase(snap)
	return nil
}

func (c *Controller) runSynthesis(ctx context.Context, id string, turns []dialogue.Turn, policy voice.Policy) error {
	start := time.Now()
	onTurn := func(i int, t dialogue.Turn) {
		snap, err := c.runs.update(id, "", func(r *run) error {
			if i >= len(r.snap.Turns) {
				return ErrWrongPhase
			}
			r.snap.Turns[i].VoiceID = t.VoiceID
			r.snap.Turns[i].Audio = append([]byte(nil), t.Audio...)
			r.snap.Synthesized = i + 1
			return nil
		})
		if err != nil {
			return
		}
		c.opts.Publisher.Publish(id, snap.UserID, EventTurn, map[string]any{
			"index":    i,
			"total":    len(turns),
			"speaker":  t.Speaker,
			"role":     t.Role,
			"voice_id": t.VoiceID,
			"bytes":    len(t.Audio),
		})
	}

	if err := c.opts.Voices.SynthesizeTurns(ctx, turns, policy, onTurn); err != nil {
		return err
	}

	snap, err := c.runs.Get(id, "")
	if err != nil {
		return err
	}
	artifact := &dialogue.Artifact{SourceText: snap.SourceText, Turns: turns}
	if err := artifact.SetMergedAudio(audio.Concat(artifact.Clips())); err != nil {
		return err
	}

	key := storage.PodcastKey(snap.UserID, id)
	if err := c.opts.Assets.Save(ctx, key, artifact.MergedAudio, "audio/mpeg"); err != nil {
		return fmt.Errorf("store podcast audio: %w", err)
	}

	c.log.Info().
		Str("run_id", id).
		Int("turns", len(turns)).
		Int("bytes", len(artifact.MergedAudio)).
		Dur("elapsed", time.Since(start)).
		Msg("podcast artifact ready")

	if _, err := c.runs.update(id, "", func(r *run) error {
		r.providers["voice"] = c.opts.Voices.Provider()
		return nil
	}); err != nil {
		return err
	}
	return c.complete(ctx, id, &database.Record{
		UserID:     snap.UserID,
		RunID:      id,
		Flow:       string(FlowPodcast),
		Locale:     snap.Locale,
		Title:      snap.Title,
		SourceText: snap.SourceText,
		Script:     artifact.Turns,
		AudioKey:   key,
	}, c.opts.Pricing.PodcastCredits(scriptChars(turns)))
}

func (c *Controller) providerSnapshot(rn *run) map[string]string {
	c.runs.mu.Lock()
	defer c.runs.mu.Unlock()
	out := make(map[string]string, len(rn.providers))
	for k, v := range rn.providers {
		out[k] = v
	}
	return out
}

// complete charges the run once and persists its record. A record that
// cannot be saved after the charge is refunded.
func (c *Controller) complete(ctx context.Context, id string, rec *database.Record, credits int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Providers == nil {
		if rn, ok := c.runs.lookup(id); ok {
			rec.Providers = c.providerSnapshot(rn)
		}
	}

	remaining, err := c.opts.Ledger.Deduct(ctx, rec.UserID, credits, fmt.Sprintf("%s %s", rec.Flow, rec.Title), id)
	if err != nil {
		return err
	}
	metrics.LedgerDeductionsTotal.WithLabelValues(rec.Flow).Inc()
	metrics.LedgerCreditsDeducted.WithLabelValues(rec.Flow).Add(float64(credits))

	// The charge has been made: finish persisting even if the run is cancelled now.
	persistCtx := context.WithoutCancel(ctx)
	rec.Credits = credits
	if err := c.opts.Records.InsertRecord(persistCtx, rec); err != nil {
		if rerr := c.opts.Ledger.Refund(persistCtx, id); rerr != nil {
			c.log.Error().Err(rerr).Str("run_id", id).Int64("credits", credits).Msg("refund after failed record save failed")
		}
		return fmt.Errorf("save record: %w", err)
	}

	snap, ok := c.runs.finish(id, func(s *Snapshot) {
		s.Phase = PhaseComplete
		s.RecordID = rec.ID
		s.Credits = credits
	})
	if !ok {
		return nil
	}
	c.opts.Publisher.Publish(id, snap.UserID, EventComplete, map[string]any{
		"record_id":         rec.ID,
		"credits":           credits,
		"remaining_balance": remaining,
	})
	c.observe(snap, "complete")

	if c.opts.Notifier != nil {
		n := Notification{RunID: id, RecordID: rec.ID, UserID: snap.UserID, Flow: snap.Flow, Title: snap.Title, Credits: credits}
		if err := c.opts.Notifier.RunCompleted(persistCtx, n); err != nil {
			c.log.Warn().Err(err).Str("run_id", id).Msg("completion notification failed")
		}
	}
	return nil
}

func (c *Controller) fail(id string, err error) {
	f := Describe(err)
	// Providers do not always wrap context.Canceled; the run context is authoritative.
	if rn, ok := c.runs.lookup(id); ok && rn.ctx.Err() != nil {
		f = failure(CodeCancelled)
	}
	c.failWith(id, f, err)
}

func (c *Controller) failWith(id string, f Failure, err error) {
	snap, ok := c.runs.finish(id, func(s *Snapshot) {
		s.Phase = PhaseFailed
		s.Failure = &f
		for i := range s.Turns {
			s.Turns[i].Audio = nil
		}
	})
	if !ok {
		return
	}
	c.opts.Publisher.Publish(id, snap.UserID, EventFailed, f)
	c.observe(snap, "failed")

	ev := c.log.Warn()
	if f.Code == CodeCancelled {
		ev = c.log.Info()
	}
	ev.Err(err).Str("run_id", id).Str("flow", string(snap.Flow)).Str("code", f.Code).Msg("run failed")
}

func (c *Controller) observe(s Snapshot, outcome string) {
	metrics.RunsTotal.WithLabelValues(string(s.Flow), outcome).Inc()
	metrics.RunDuration.WithLabelValues(string(s.Flow)).Observe(s.UpdatedAt.Sub(s.CreatedAt).Seconds())
}

func scriptChars(turns []dialogue.Turn) int {
	n := 0
	for _, t := range turns {
		n += utf8.RuneCountInString(t.Content)
	}
	return n
}
