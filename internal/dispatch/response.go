package dispatch

import (
	"encoding/json"
	"net/http"

	"msgrelay/backend/internal/domain"
)

// 固定的 CORS 响应头
const (
	AllowOrigin  = "*"
	AllowHeaders = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token"
	AllowMethods = "OPTIONS,POST,GET"
)

// 响应文案
const (
	msgPreflight        = "CORS preflight OK"
	msgMessageSaved     = "Message saved successfully!"
	msgReplySaved       = "Reply saved successfully!"
	msgInvalidBody      = "Invalid request body"
	msgUnsupported      = "Unsupported HTTP method"
	msgUnsupportedPath  = "Unsupported operation"
	msgInternalError    = "Internal server error"
	msgDownstreamFailed = "Downstream service failure"
)

// 外部依赖失败时对应的提示（DownstreamError.Op -> 文案）
var downstreamMessages = map[string]string{
	"save message":      "Could not save message",
	"send notification": "Message saved but notification email could not be sent",
	"save reply":        "Could not save reply",
	"list messages":     "Could not fetch messages",
}

// SuccessBody 成功响应体
type SuccessBody struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
	ClientID  string `json:"clientId,omitempty"`
}

// ErrorBody 错误响应体
type ErrorBody struct {
	Error     string   `json:"error"`
	Errors    []string `json:"errors,omitempty"`
	Details   string   `json:"details,omitempty"`
	MessageID string   `json:"messageId,omitempty"`
}

// Headers 返回每个响应都携带的响应头
func Headers() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  AllowOrigin,
		"Access-Control-Allow-Headers": AllowHeaders,
		"Access-Control-Allow-Methods": AllowMethods,
		"Content-Type":                 "application/json",
	}
}

// JSON 构造 JSON 响应
func JSON(status int, payload any) Response {
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    Headers(),
			Body:       `{"error":"` + msgInternalError + `"}`,
		}
	}
	return Response{StatusCode: status, Headers: Headers(), Body: string(data)}
}

func preflight() Response {
	return JSON(http.StatusOK, SuccessBody{Message: msgPreflight})
}

func saved(msg string, message *domain.Message) Response {
	return JSON(http.StatusOK, SuccessBody{
		Message:   msg,
		MessageID: message.MessageID,
		ClientID:  message.ClientID,
	})
}

func messageList(messages []domain.Message) Response {
	if messages == nil {
		messages = []domain.Message{}
	}
	return JSON(http.StatusOK, messages)
}

func badRequest(body ErrorBody) Response {
	return JSON(http.StatusBadRequest, body)
}

func internalError(body ErrorBody) Response {
	return JSON(http.StatusInternalServerError, body)
}
