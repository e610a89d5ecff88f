package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snarg/audiocast/internal/provider"
	"github.com/snarg/audiocast/internal/transcript"
)

func TestDeepgramRecognize(t *testing.T) {
	t.Run("utterances", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Token dg-key" {
				t.Errorf("Authorization = %q", got)
			}
			if r.URL.Query().Get("diarize") != "true" || r.URL.Query().Get("language") != "en" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["url"] != "https://cdn/a.mp3" {
				t.Errorf("url = %q", body["url"])
			}
			w.Write([]byte(`{"metadata":{"duration":9.5},"results":{"channels":[{"alternatives":[{"transcript":"Hello there General Kenobi"}]}],
				"utterances":[{"start":5,"end":9,"transcript":"General Kenobi","speaker":1},{"start":1,"end":5,"transcript":"Hello there","speaker":0}]}}`))
		}))
		defer srv.Close()

		c := NewDeepgramClient("dg-key", srv.URL, "", 5*time.Second)
		res, err := c.Recognize(context.Background(), Request{AudioURL: "https://cdn/a.mp3", Locale: "en"})
		if err != nil {
			t.Fatalf("Recognize: %v", err)
		}
		if res.FullText != "Hello there General Kenobi" {
			t.Errorf("FullText = %q", res.FullText)
		}
		if res.Segments[0].Speaker != "Speaker 1" || res.Segments[1].Speaker != "Speaker 2" {
			t.Errorf("speakers = %q, %q", res.Segments[0].Speaker, res.Segments[1].Speaker)
		}
		if res.Duration != 9.5 {
			t.Errorf("Duration = %v", res.Duration)
		}
	})

	t.Run("payment_required", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"err_code":"ASR_PAYMENT_REQUIRED","err_msg":"Project does not have enough balance"}`))
		}))
		defer srv.Close()

		_, err := NewDeepgramClient("k", srv.URL, "", time.Second).Recognize(context.Background(), Request{AudioURL: "u"})
		if provider.CategoryOf(err) != provider.QuotaExceeded {
			t.Errorf("category = %q, want quota_exceeded", provider.CategoryOf(err))
		}
	})

	t.Run("missing_key", func(t *testing.T) {
		_, err := NewDeepgramClient("", "", "", time.Second).Recognize(context.Background(), Request{AudioURL: "u"})
		if provider.CategoryOf(err) != provider.ConfigurationMissing {
			t.Errorf("category = %q, want configuration_missing", provider.CategoryOf(err))
		}
	})
}

func TestElevenLabsRecognize(t *testing.T) {
	t.Run("diarized_words", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("xi-api-key") != "el-key" {
				t.Errorf("missing api key header")
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if got := r.FormValue("cloud_storage_url"); got != "https://cdn/a.mp3" {
				t.Errorf("cloud_storage_url = %q", got)
			}
			if r.FormValue("diarize") != "true" {
				t.Error("diarize not requested")
			}
			w.Write([]byte(`{"language_code":"en","text":"Hi. Hello.","words":[
				{"text":"Hi.","type":"word","start":0.1,"end":0.4,"speaker_id":"speaker_0"},
				{"text":" ","type":"spacing","start":0.4,"end":0.5,"speaker_id":"speaker_0"},
				{"text":"Hello.","type":"word","start":0.6,"end":1.0,"speaker_id":"speaker_1"}]}`))
		}))
		defer srv.Close()

		c := NewElevenLabsClient("el-key", srv.URL, "", 5*time.Second)
		res, err := c.Recognize(context.Background(), Request{AudioURL: "https://cdn/a.mp3", Locale: "en"})
		if err != nil {
			t.Fatalf("Recognize: %v", err)
		}
		if len(res.Segments) != 2 {
			t.Fatalf("segments = %+v", res.Segments)
		}
		if res.Segments[1].Speaker != "Speaker 2" || res.FullText != "Hi. Hello." {
			t.Errorf("result = %+v", res)
		}
	})

	errorCases := []struct {
		name   string
		status int
		body   string
		want   provider.Category
	}{
		{"quota", 401, `{"detail":{"status":"quota_exceeded","message":"This request exceeds your quota"}}`, provider.QuotaExceeded},
		{"bad_key", 401, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`, provider.InvalidCredentials},
		{"busy", 429, `{"detail":{"status":"system_busy","message":"busy"}}`, provider.RateLimited},
		{"validation_list", 422, `{"detail":[{"loc":["body","model_id"],"msg":"field required"}]}`, provider.InvalidInput},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewElevenLabsClient("k", srv.URL, "", time.Second).Recognize(context.Background(), Request{AudioURL: "u"})
			if got := provider.CategoryOf(err); got != tc.want {
				t.Errorf("category = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTencentTaskLifecycle(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gw-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		switch r.Header.Get("X-TC-Action") {
		case "CreateRecTask":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["EngineModelType"] != "16k_zh" {
				t.Errorf("EngineModelType = %v", body["EngineModelType"])
			}
			w.Write([]byte(`{"Response":{"RequestId":"r1","Data":{"TaskId":1234567}}}`))
		case "DescribeTaskStatus":
			polls++
			if polls == 1 {
				w.Write([]byte(`{"Response":{"RequestId":"r2","Data":{"TaskId":1234567,"Status":1,"StatusStr":"doing"}}}`))
				return
			}
			w.Write([]byte(`{"Response":{"RequestId":"r3","Data":{"TaskId":1234567,"Status":2,"StatusStr":"success",
				"Result":"[0:1.020,0:5.000,0]  你好\n[0:5.000,0:8.000,1]  欢迎","AudioDuration":8.0}}}`))
		default:
			t.Errorf("unexpected action %q", r.Header.Get("X-TC-Action"))
		}
	}))
	defer srv.Close()

	c := NewTencentClient(srv.URL, TokenSigner{Token: "gw-token"}, nil, 5*time.Second)

	taskID, err := c.Submit(context.Background(), Request{AudioURL: "https://cdn/a.mp3", Locale: "zh"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if taskID != "1234567" {
		t.Errorf("taskID = %q", taskID)
	}

	st, err := c.Status(context.Background(), taskID)
	if err != nil || st.State != TaskRunning {
		t.Fatalf("first status = %+v, %v", st, err)
	}
	st, err = c.Status(context.Background(), taskID)
	if err != nil || st.State != TaskSucceeded {
		t.Fatalf("second status = %+v, %v", st, err)
	}

	segs := transcript.NewParser().Parse(st.Markup)
	if len(segs) != 2 || segs[1].Speaker != "Speaker 2" {
		t.Errorf("parsed segments = %+v", segs)
	}
}

func TestTencentErrors(t *testing.T) {
	t.Run("api_error_code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"Response":{"RequestId":"r","Error":{"Code":"FailedOperation.NoBalance","Message":"no balance"}}}`))
		}))
		defer srv.Close()

		_, err := NewTencentClient(srv.URL, TokenSigner{Token: "t"}, nil, time.Second).
			Submit(context.Background(), Request{AudioURL: "u", Locale: "zh"})
		if provider.CategoryOf(err) != provider.QuotaExceeded {
			t.Errorf("category = %q, want quota_exceeded", provider.CategoryOf(err))
		}
	})

	t.Run("failed_task", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"Response":{"RequestId":"r","Data":{"TaskId":1,"Status":3,"StatusStr":"failed","ErrorMsg":"Failed to download audio file!"}}}`))
		}))
		defer srv.Close()

		st, err := NewTencentClient(srv.URL, TokenSigner{Token: "t"}, nil, time.Second).Status(context.Background(), "1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.State != TaskFailed || provider.CategoryOf(st.Err) != provider.InvalidInput {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("no_signer", func(t *testing.T) {
		_, err := NewTencentClient("", nil, nil, time.Second).Submit(context.Background(), Request{AudioURL: "u", Locale: "zh"})
		if provider.CategoryOf(err) != provider.ConfigurationMissing {
			t.Errorf("category = %q, want configuration_missing", provider.CategoryOf(err))
		}
	})

	codes := map[string]provider.Category{
		"AuthFailure.SecretIdNotFound":  provider.InvalidCredentials,
		"RequestLimitExceeded":          provider.RateLimited,
		"InvalidParameterValue":         provider.InvalidInput,
		"InternalError":                 provider.TransientNetwork,
		"UnsupportedOperation.Whatever": provider.Unknown,
	}
	for code, want := range codes {
		t.Run(code, func(t *testing.T) {
			if got := classifyTencentCode(code); got != want {
				t.Errorf("classifyTencentCode(%q) = %q, want %q", code, got, want)
			}
		})
	}
}
