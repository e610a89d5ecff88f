package provider

import "encoding/json"

type elevenlabsErrorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type elevenlabsDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FromElevenLabs classifies an ElevenLabs error response. Speech-to-text and
// text-to-speech share the detail.status vocabulary; it takes precedence
// over the HTTP status (quota errors arrive as 401).
func FromElevenLabs(operation string, status int, body []byte) *Error {
	pe := FromStatus("elevenlabs", operation, status, body)

	var eb elevenlabsErrorBody
	if json.Unmarshal(body, &eb) != nil || len(eb.Detail) == 0 {
		return pe
	}
	var d elevenlabsDetail
	if json.Unmarshal(eb.Detail, &d) != nil {
		// 422 validation errors carry a list under detail.
		return pe
	}
	pe.Code = d.Status
	if d.Message != "" {
		pe.Message = d.Message
	}
	switch d.Status {
	case "quota_exceeded", "payment_required":
		pe.Category = QuotaExceeded
	case "invalid_api_key", "needs_authorization", "missing_permissions":
		pe.Category = InvalidCredentials
	case "too_many_concurrent_requests", "system_busy", "rate_limit_exceeded":
		pe.Category = RateLimited
	case "invalid_file", "voice_not_found", "file_too_large", "invalid_cloud_storage_url", "max_character_limit_exceeded":
		pe.Category = InvalidInput
	}
	return pe
}
