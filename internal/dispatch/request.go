package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"msgrelay/backend/internal/service"
)

// ClientID 接受 JSON 字符串或数字，统一保存为字符串
type ClientID string

// UnmarshalJSON 实现 json.Unmarshaler
func (c *ClientID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ClientID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errClientIDType
		}
		*c = ClientID(n.String())
		return nil
	}
}

var errClientIDType = errors.New("clientId must be a string or a number")

// SendMessageRequest POST /messages 请求体
type SendMessageRequest struct {
	ClientID ClientID `json:"clientId" binding:"required"`
	Message  string   `json:"message" binding:"required"`
	Email    string   `json:"email" binding:"required"`
}

// Input 转换为服务层输入
func (r SendMessageRequest) Input() service.SendMessageInput {
	return service.SendMessageInput{
		ClientID: string(r.ClientID),
		Message:  r.Message,
		Email:    r.Email,
	}
}

// InboundReplyRequest POST /inbound 请求体
type InboundReplyRequest struct {
	Sender    string `json:"sender" binding:"required"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject" binding:"max=500"`
	Text      string `json:"text"`
}

// Input 转换为服务层输入
func (r InboundReplyRequest) Input() service.InboundReplyInput {
	return service.InboundReplyInput{
		Sender:    r.Sender,
		Recipient: r.Recipient,
		Subject:   r.Subject,
		Text:      r.Text,
	}
}

// decodeBody 解码并校验请求体，失败时返回 *service.ValidationError
func decodeBody(body string, obj any) error {
	if strings.TrimSpace(body) == "" {
		return service.NewValidationError(msgInvalidBody, "request body is required")
	}

	err := binding.JSON.BindBody([]byte(body), obj)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, describeFieldError(obj, fe))
		}
		return service.NewValidationError(msgInvalidBody, fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return service.NewValidationError(msgInvalidBody, fmt.Sprintf("%s has the wrong type", typeErr.Field))
	}
	if errors.Is(err, errClientIDType) {
		return service.NewValidationError(msgInvalidBody, errClientIDType.Error())
	}

	return service.NewValidationError(msgInvalidBody, "request body must be a JSON object")
}

func describeFieldError(obj any, fe validator.FieldError) string {
	name := jsonFieldName(obj, fe.StructField())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}

func jsonFieldName(obj any, structField string) string {
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	f, ok := t.FieldByName(structField)
	if !ok {
		return structField
	}
	tag := strings.Split(f.Tag.Get("json"), ",")[0]
	if tag == "" || tag == "-" {
		return structField
	}
	return tag
}
