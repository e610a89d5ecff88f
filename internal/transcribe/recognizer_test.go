package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/transcript"
)

type fakeSync struct {
	calls int
	res   *transcript.Result
	err   error
}

func (f *fakeSync) Name() string { return "fake-sync" }
func (f *fakeSync) Recognize(ctx context.Context, req Request) (*transcript.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeAsync struct {
	submits   int
	statuses  []*TaskStatus
	polls     int
	submitErr error
	events    *[]string
}

func (f *fakeAsync) Name() string { return "fake-async" }
func (f *fakeAsync) Submit(ctx context.Context, req Request) (string, error) {
	f.submits++
	return "42", f.submitErr
}
func (f *fakeAsync) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	if f.events != nil {
		*f.events = append(*f.events, "status")
	}
	i := f.polls
	f.polls++
	if i >= len(f.statuses) {
		return &TaskStatus{State: TaskRunning}, nil
	}
	return f.statuses[i], nil
}

type fakeCredits struct {
	ok    bool
	calls int
}

func (f *fakeCredits) HasCredits(ctx context.Context, userID string, amount int64) (bool, error) {
	f.calls++
	return f.ok, nil
}

func newTestRecognizer(routes map[string]Route, credits CreditChecker, events *[]string) *Recognizer {
	r := NewRecognizer(RecognizerOptions{
		Routes:       routes,
		Credits:      credits,
		PollInterval: 5 * time.Second,
		MaxWait:      30 * time.Second,
		Log:          zerolog.Nop(),
	})
	r.after = func(d time.Duration) <-chan time.Time {
		if events != nil {
			*events = append(*events, "wait "+d.String())
		}
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return r
}

func TestRecognizeSync(t *testing.T) {
	sync := &fakeSync{res: transcript.Completed([]transcript.Segment{{Start: 0, End: 2, Text: "hi"}}, 2, "fake-sync")}
	r := newTestRecognizer(map[string]Route{"en": {Sync: sync}}, nil, nil)

	t.Run("exact_locale", func(t *testing.T) {
		res, err := r.Recognize(context.Background(), Request{AudioURL: "https://x/a.mp3", Locale: "en"})
		if err != nil {
			t.Fatalf("Recognize: %v", err)
		}
		if res.Status != transcript.StatusCompleted || res.FullText != "hi" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("regional_locale_falls_back", func(t *testing.T) {
		if _, err := r.Recognize(context.Background(), Request{AudioURL: "https://x/a.mp3", Locale: "en-US"}); err != nil {
			t.Fatalf("Recognize: %v", err)
		}
	})

	t.Run("unsupported_locale", func(t *testing.T) {
		_, err := r.Recognize(context.Background(), Request{AudioURL: "https://x/a.mp3", Locale: "fr"})
		if !errors.Is(err, ErrUnsupportedLocale) {
			t.Errorf("err = %v, want ErrUnsupportedLocale", err)
		}
	})

	t.Run("missing_audio", func(t *testing.T) {
		_, err := r.Recognize(context.Background(), Request{Locale: "en"})
		if !errors.Is(err, ErrNoAudio) {
			t.Errorf("err = %v, want ErrNoAudio", err)
		}
	})
}

func TestRecognizeProviderErrorSurfaces(t *testing.T) {
	perr := &provider.Error{Provider: "fake-sync", Category: provider.QuotaExceeded}
	r := newTestRecognizer(map[string]Route{"en": {Sync: &fakeSync{err: perr}}}, nil, nil)

	res, err := r.Recognize(context.Background(), Request{AudioURL: "u", Locale: "en"})
	if res != nil {
		t.Error("expected no partial result")
	}
	if provider.CategoryOf(err) != provider.QuotaExceeded {
		t.Errorf("category = %q, want quota_exceeded", provider.CategoryOf(err))
	}
}

func TestRecognizeInsufficientBalance(t *testing.T) {
	sync := &fakeSync{res: transcript.Completed(nil, 0, "fake-sync")}
	async := &fakeAsync{}
	credits := &fakeCredits{ok: false}
	r := newTestRecognizer(map[string]Route{"en": {Sync: sync}, "zh": {Async: async}}, credits, nil)

	for _, locale := range []string{"en", "zh"} {
		t.Run(locale, func(t *testing.T) {
			_, err := r.Recognize(context.Background(), Request{AudioURL: "u", Locale: locale, RequiredCredits: 5})
			if !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("err = %v, want ErrInsufficientBalance", err)
			}
		})
	}
	if sync.calls != 0 || async.submits != 0 {
		t.Errorf("provider called despite insufficient balance: sync=%d async=%d", sync.calls, async.submits)
	}

	t.Run("zero_credits_skips_check", func(t *testing.T) {
		before := credits.calls
		r.Recognize(context.Background(), Request{AudioURL: "u", Locale: "en"})
		if credits.calls != before {
			t.Error("credit check ran without RequiredCredits")
		}
	})
}

func TestAwaitPolling(t *testing.T) {
	t.Run("first_poll_after_interval", func(t *testing.T) {
		var events []string
		async := &fakeAsync{
			events: &events,
			statuses: []*TaskStatus{
				{State: TaskWaiting},
				{State: TaskRunning},
				{State: TaskSucceeded, Markup: "[00:01-00:05] Hello there\n[00:05-00:09] General Kenobi", Duration: 9},
			},
		}
		r := newTestRecognizer(map[string]Route{"zh": {Async: async}}, nil, &events)

		job, err := r.Submit(context.Background(), Request{AudioURL: "u", Locale: "zh"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if job.Result.Status != transcript.StatusProcessing {
			t.Errorf("status after submit = %q, want processing", job.Result.Status)
		}

		res, err := r.Await(context.Background(), job)
		if err != nil {
			t.Fatalf("Await: %v", err)
		}
		want := []string{"wait 5s", "status", "wait 5s", "status", "wait 5s", "status"}
		if len(events) != len(want) {
			t.Fatalf("events = %v, want %v", events, want)
		}
		for i := range want {
			if events[i] != want[i] {
				t.Errorf("event %d = %q, want %q", i, events[i], want[i])
			}
		}
		if res.FullText != "Hello there General Kenobi" || res.Segments[1].Start != 5 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("failed_task", func(t *testing.T) {
		perr := &provider.Error{Provider: "fake-async", Category: provider.InvalidInput, Message: "audio download failed"}
		async := &fakeAsync{statuses: []*TaskStatus{{State: TaskFailed, Err: perr}}}
		r := newTestRecognizer(map[string]Route{"zh": {Async: async}}, nil, nil)

		_, err := r.Recognize(context.Background(), Request{AudioURL: "u", Locale: "zh"})
		if provider.CategoryOf(err) != provider.InvalidInput {
			t.Errorf("category = %q, want invalid_input", provider.CategoryOf(err))
		}
	})

	t.Run("timeout_is_transient", func(t *testing.T) {
		async := &fakeAsync{}
		r := newTestRecognizer(map[string]Route{"zh": {Async: async}}, nil, nil)

		_, err := r.Recognize(context.Background(), Request{AudioURL: "u", Locale: "zh"})
		if provider.CategoryOf(err) != provider.TransientNetwork {
			t.Errorf("category = %q, want transient_network", provider.CategoryOf(err))
		}
		// 30s max wait at a 5s interval
		if async.polls != 6 {
			t.Errorf("polls = %d, want 6", async.polls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		async := &fakeAsync{}
		r := newTestRecognizer(map[string]Route{"zh": {Async: async}}, nil, nil)
		r.after = func(time.Duration) <-chan time.Time { return make(chan time.Time) }

		ctx, cancel := context.WithCancel(context.Background())
		job, err := r.Submit(ctx, Request{AudioURL: "u", Locale: "zh"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		cancel()
		if _, err := r.Await(ctx, job); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if async.polls != 0 {
			t.Errorf("polls = %d, want 0", async.polls)
		}
	})
}
