package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/snarg/audiocast/internal/provider"
)

// Signer authenticates a Tencent Cloud API request. Vendor signature
// schemes live outside this package.
type Signer interface {
	Sign(req *http.Request, action string, payload []byte) error
}

// TokenSigner authenticates with a static bearer token, for deployments
// that reach the ASR API through a signing gateway.
type TokenSigner struct {
	Token string
}

func (s TokenSigner) Sign(req *http.Request, _ string, _ []byte) error {
	if s.Token == "" {
		return fmt.Errorf("empty token")
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	return nil
}

// TencentClient drives Tencent Cloud's recording-file recognition:
// CreateRecTask followed by DescribeTaskStatus polling. Implements AsyncProvider.
type TencentClient struct {
	endpoint string
	signer   Signer
	engines  map[string]string // locale → EngineModelType
	client   *http.Client
}

const tencentAPIVersion = "2019-06-14"

// DefaultTencentEngines maps locales to 16k engine models.
var DefaultTencentEngines = map[string]string{
	"zh": "16k_zh",
	"en": "16k_en",
	"ja": "16k_ja",
	"ko": "16k_ko",
}

type tencentEnvelope struct {
	Response struct {
		RequestID string          `json:"RequestId"`
		Error     *tencentError   `json:"Error"`
		Data      json.RawMessage `json:"Data"`
	} `json:"Response"`
}

type tencentError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type tencentCreateData struct {
	TaskID uint64 `json:"TaskId"`
}

type tencentStatusData struct {
	TaskID        uint64  `json:"TaskId"`
	Status        int     `json:"Status"` // 0 waiting, 1 doing, 2 success, 3 failed
	StatusStr     string  `json:"StatusStr"`
	Result        string  `json:"Result"`
	ErrorMsg      string  `json:"ErrorMsg"`
	AudioDuration float64 `json:"AudioDuration"`
}

func NewTencentClient(endpoint string, signer Signer, engines map[string]string, timeout time.Duration) *TencentClient {
	if endpoint == "" {
		endpoint = "https://asr.tencentcloudapi.com"
	}
	if engines == nil {
		engines = DefaultTencentEngines
	}
	return &TencentClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		signer:   signer,
		engines:  engines,
		client:   &http.Client{Timeout: timeout},
	}
}

func (tc *TencentClient) Name() string { return "tencent" }

func (tc *TencentClient) Submit(ctx context.Context, req Request) (string, error) {
	engine, ok := tc.engines[req.Locale]
	if !ok {
		return "", &provider.Error{Provider: tc.Name(), Operation: "submit", Category: provider.InvalidInput, Message: "no engine for locale " + req.Locale}
	}
	body := map[string]any{
		"EngineModelType":    engine,
		"ChannelNum":         1,
		"ResTextFormat":      0,
		"SourceType":         0,
		"Url":                req.AudioURL,
		"SpeakerDiarization": 1,
		"SpeakerNumber":      0,
	}
	var data tencentCreateData
	if err := tc.call(ctx, "CreateRecTask", "submit", body, &data); err != nil {
		return "", err
	}
	return strconv.FormatUint(data.TaskID, 10), nil
}

func (tc *TencentClient) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	id, err := strconv.ParseUint(taskID, 10, 64)
	if err != nil {
		return nil, &provider.Error{Provider: tc.Name(), Operation: "status", Category: provider.InvalidInput, Message: "bad task id " + taskID}
	}
	var data tencentStatusData
	if err := tc.call(ctx, "DescribeTaskStatus", "status", map[string]any{"TaskId": id}, &data); err != nil {
		return nil, err
	}

	switch data.Status {
	case 0:
		return &TaskStatus{State: TaskWaiting}, nil
	case 1:
		return &TaskStatus{State: TaskRunning}, nil
	case 2:
		return &TaskStatus{State: TaskSucceeded, Markup: data.Result, Duration: data.AudioDuration}, nil
	default:
		return &TaskStatus{
			State: TaskFailed,
			Err:   &provider.Error{Provider: tc.Name(), Operation: "status", Category: classifyTencentTaskFailure(data.ErrorMsg), Message: data.ErrorMsg},
		}, nil
	}
}

func (tc *TencentClient) call(ctx context.Context, action, operation string, body any, out any) error {
	if tc.signer == nil {
		return provider.RequireCredential(tc.Name(), operation, "")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", action, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.endpoint+"/", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("X-TC-Action", action)
	httpReq.Header.Set("X-TC-Version", tencentAPIVersion)
	httpReq.Header.Set("X-TC-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if err := tc.signer.Sign(httpReq, action, payload); err != nil {
		return &provider.Error{Provider: tc.Name(), Operation: operation, Category: provider.ConfigurationMissing, Message: "sign request", Err: err}
	}

	resp, err := tc.client.Do(httpReq)
	if err != nil {
		return provider.FromTransport(tc.Name(), operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.FromTransport(tc.Name(), operation, err)
	}
	if resp.StatusCode != http.StatusOK {
		return provider.FromStatus(tc.Name(), operation, resp.StatusCode, raw)
	}

	var env tencentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &provider.Error{Provider: tc.Name(), Operation: operation, Category: provider.Unknown, Message: "malformed response", Err: err}
	}
	if e := env.Response.Error; e != nil && e.Code != "" {
		return &provider.Error{
			Provider:  tc.Name(),
			Operation: operation,
			Category:  classifyTencentCode(e.Code),
			Code:      e.Code,
			Message:   e.Message,
		}
	}
	if err := json.Unmarshal(env.Response.Data, out); err != nil {
		return &provider.Error{Provider: tc.Name(), Operation: operation, Category: provider.Unknown, Message: "malformed data", Err: err}
	}
	return nil
}

// classifyTencentCode maps Tencent Cloud API error codes.
func classifyTencentCode(code string) provider.Category {
	switch {
	case strings.HasPrefix(code, "AuthFailure"):
		return provider.InvalidCredentials
	case strings.HasPrefix(code, "RequestLimitExceeded"), strings.HasPrefix(code, "LimitExceeded"):
		return provider.RateLimited
	case code == "FailedOperation.NoBalance",
		code == "FailedOperation.UserHasNoFreeAmount",
		code == "FailedOperation.ServiceIsolate",
		code == "FailedOperation.UserNotRegistered",
		strings.HasPrefix(code, "ResourceUnavailable"):
		return provider.QuotaExceeded
	case strings.HasPrefix(code, "InvalidParameter"), strings.HasPrefix(code, "MissingParameter"):
		return provider.InvalidInput
	case strings.HasPrefix(code, "InternalError"), code == "ServiceUnavailable":
		return provider.TransientNetwork
	}
	return provider.Unknown
}

// classifyTencentTaskFailure reads the free-text failure reason of a task.
func classifyTencentTaskFailure(msg string) provider.Category {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "download"),
		strings.Contains(lower, "audio"),
		strings.Contains(lower, "format"),
		strings.Contains(lower, "duration"):
		return provider.InvalidInput
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "internal"):
		return provider.TransientNetwork
	}
	return provider.Unknown
}
