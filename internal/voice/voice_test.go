package voice

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/provider"
)

type fakeSynth struct {
	calls  []string
	failAt int // zero-based call index to fail, -1 for never
	err    error
}

func (f *fakeSynth) Name() string { return "fake" }
func (f *fakeSynth) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, voiceID+":"+text)
	if idx == f.failAt {
		return nil, f.err
	}
	return []byte(text), nil
}

func script(n int) []dialogue.Turn {
	turns := make([]dialogue.Turn, n)
	for i := range turns {
		role := dialogue.RoleHost
		if i%2 == 1 {
			role = dialogue.RoleGuest
		}
		turns[i] = dialogue.Turn{Speaker: string(role), Role: role, Content: string(rune('a' + i))}
	}
	return turns
}

func TestSynthesizeTurns(t *testing.T) {
	policy := Policy{Host: "vh", Guest: "vg"}

	t.Run("sequential_in_place", func(t *testing.T) {
		synth := &fakeSynth{failAt: -1}
		o := NewOrchestrator(synth, zerolog.Nop())
		turns := script(4)

		var seen []int
		err := o.SynthesizeTurns(context.Background(), turns, policy, func(i int, tr dialogue.Turn) {
			seen = append(seen, i)
			if !tr.Synthesized() {
				t.Errorf("onTurn(%d) called before audio attached", i)
			}
		})
		if err != nil {
			t.Fatalf("SynthesizeTurns: %v", err)
		}
		want := []string{"vh:a", "vg:b", "vh:c", "vg:d"}
		if strings.Join(synth.calls, ",") != strings.Join(want, ",") {
			t.Errorf("calls = %v, want %v", synth.calls, want)
		}
		if len(seen) != 4 || seen[0] != 0 || seen[3] != 3 {
			t.Errorf("onTurn order = %v", seen)
		}
		for i, tr := range turns {
			if string(tr.Audio) != tr.Content {
				t.Errorf("turn %d audio = %q", i, tr.Audio)
			}
		}
		if turns[1].VoiceID != "vg" {
			t.Errorf("turn 1 voice = %q", turns[1].VoiceID)
		}
	})

	t.Run("aborts_on_first_failure", func(t *testing.T) {
		perr := &provider.Error{Provider: "fake", Category: provider.RateLimited}
		synth := &fakeSynth{failAt: 2, err: perr}
		o := NewOrchestrator(synth, zerolog.Nop())
		turns := script(5)

		err := o.SynthesizeTurns(context.Background(), turns, policy, nil)
		var se *SynthesisError
		if !errors.As(err, &se) || se.Index != 2 || se.Total != 5 {
			t.Fatalf("err = %v, want SynthesisError at index 2", err)
		}
		if provider.CategoryOf(err) != provider.RateLimited {
			t.Errorf("category = %q", provider.CategoryOf(err))
		}
		if len(synth.calls) != 3 {
			t.Errorf("calls = %d, want 3", len(synth.calls))
		}
		if turns[3].Synthesized() || turns[4].Synthesized() {
			t.Error("turns after the failure were synthesized")
		}
	})

	t.Run("empty_audio_is_failure", func(t *testing.T) {
		o := NewOrchestrator(emptySynth{}, zerolog.Nop())
		err := o.SynthesizeTurns(context.Background(), script(2), policy, nil)
		if provider.CategoryOf(err) != provider.Unknown || err == nil {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("missing_voice_fails_before_calls", func(t *testing.T) {
		synth := &fakeSynth{failAt: -1}
		o := NewOrchestrator(synth, zerolog.Nop())
		err := o.SynthesizeTurns(context.Background(), script(2), Policy{Host: "vh"}, nil)
		if provider.CategoryOf(err) != provider.InvalidInput {
			t.Errorf("err = %v, want invalid_input", err)
		}
		if len(synth.calls) != 0 {
			t.Errorf("calls = %d, want 0", len(synth.calls))
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		synth := &fakeSynth{failAt: -1}
		err := NewOrchestrator(synth, zerolog.Nop()).SynthesizeTurns(ctx, script(2), policy, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if len(synth.calls) != 0 {
			t.Errorf("calls = %d after cancel", len(synth.calls))
		}
	})
}

type emptySynth struct{}

func (emptySynth) Name() string { return "empty" }
func (emptySynth) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, nil
}

func TestElevenLabsSynthesize(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/text-to-speech/voice-1" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if r.URL.Query().Get("output_format") != "mp3_44100_128" {
				t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
			}
			if r.Header.Get("xi-api-key") != "k" {
				t.Error("missing api key header")
			}
			var body ttsRequest
			json.NewDecoder(r.Body).Decode(&body)
			if body.Text != "hello" || body.VoiceSettings.Stability != 0.5 {
				t.Errorf("body = %+v", body)
			}
			w.Write([]byte("ID3audio"))
		}))
		defer srv.Close()

		c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, Stability: -1, Similarity: -1})
		audio, err := c.Synthesize(context.Background(), "hello", "voice-1")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(audio) != "ID3audio" {
			t.Errorf("audio = %q", audio)
		}
	})

	t.Run("quota", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":{"status":"quota_exceeded","message":"no credits"}}`))
		}))
		defer srv.Close()

		c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL, Stability: -1, Similarity: -1})
		_, err := c.Synthesize(context.Background(), "hello", "voice-1")
		if provider.CategoryOf(err) != provider.QuotaExceeded {
			t.Errorf("err = %v, want quota_exceeded", err)
		}
	})

	t.Run("missing_key", func(t *testing.T) {
		c := NewElevenLabsClient(ElevenLabsConfig{Stability: -1, Similarity: -1})
		_, err := c.Synthesize(context.Background(), "hello", "voice-1")
		if provider.CategoryOf(err) != provider.ConfigurationMissing {
			t.Errorf("err = %v", err)
		}
	})
}

func TestMiniMaxSynthesize(t *testing.T) {
	t.Run("hex_decoded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("GroupId") != "g1" {
				t.Errorf("GroupId = %q", r.URL.Query().Get("GroupId"))
			}
			if r.Header.Get("Authorization") != "Bearer k" {
				t.Error("missing bearer token")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data":      map[string]any{"audio": hex.EncodeToString([]byte("mp3bytes")), "status": 2},
				"base_resp": map[string]any{"status_code": 0, "status_msg": "success"},
			})
		}))
		defer srv.Close()

		c := NewMiniMaxClient("k", "g1", srv.URL, "", 0)
		audio, err := c.Synthesize(context.Background(), "你好", "female-shaonv")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(audio) != "mp3bytes" {
			t.Errorf("audio = %q", audio)
		}
	})

	codes := map[int]provider.Category{
		1002: provider.RateLimited,
		1004: provider.InvalidCredentials,
		1008: provider.QuotaExceeded,
		2013: provider.InvalidInput,
		1001: provider.TransientNetwork,
		9999: provider.Unknown,
	}
	for code, want := range codes {
		if got := classifyMiniMaxCode(code); got != want {
			t.Errorf("classifyMiniMaxCode(%d) = %q, want %q", code, got, want)
		}
	}

	t.Run("base_resp_error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"base_resp":{"status_code":1008,"status_msg":"insufficient balance"}}`))
		}))
		defer srv.Close()

		_, err := NewMiniMaxClient("k", "g1", srv.URL, "", 0).Synthesize(context.Background(), "x", "v")
		var pe *provider.Error
		if !errors.As(err, &pe) || pe.Category != provider.QuotaExceeded || pe.Code != "1008" {
			t.Errorf("err = %v", err)
		}
	})
}

func TestPolicy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, ok := DefaultPolicy("minimax", "zh-CN")
		if !ok || p.Host != "female-shaonv" {
			t.Errorf("DefaultPolicy(minimax, zh-CN) = %+v, %v", p, ok)
		}
		p, ok = DefaultPolicy("elevenlabs", "es")
		if !ok || p.Host == "" || p.Guest == "" {
			t.Errorf("DefaultPolicy(elevenlabs, es) = %+v, %v", p, ok)
		}
		if _, ok := DefaultPolicy("nobody", "en"); ok {
			t.Error("unknown provider should have no policy")
		}
	})

	t.Run("voice_for", func(t *testing.T) {
		p := Policy{Host: "h", Guest: "g"}
		if v, _ := p.VoiceFor(dialogue.RoleGuest); v != "g" {
			t.Errorf("VoiceFor(guest) = %q", v)
		}
		if _, err := p.VoiceFor("narrator"); err == nil {
			t.Error("VoiceFor(narrator) should fail")
		}
	})

	t.Run("file_overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "voices.yaml")
		os.WriteFile(path, []byte("elevenlabs:\n  es: {host: esHost}\nacme:\n  \"*\": {host: a, guest: b}\n"), 0o644)

		table, err := LoadPolicyFile(path)
		if err != nil {
			t.Fatalf("LoadPolicyFile: %v", err)
		}
		p, _ := table.Lookup("elevenlabs", "es-MX")
		if p.Host != "esHost" {
			t.Errorf("es host = %q", p.Host)
		}
		if p.Guest != DefaultPolicies["elevenlabs"]["*"].Guest {
			t.Errorf("es guest = %q, want the provider-wide default", p.Guest)
		}
		if p, _ := table.Lookup("acme", "fr"); p.Guest != "b" {
			t.Errorf("acme = %+v", p)
		}
		if p, _ := table.Lookup("elevenlabs", "en"); p.Host != DefaultPolicies["elevenlabs"]["*"].Host {
			t.Errorf("untouched entries should keep defaults, got %+v", p)
		}
	})
}
