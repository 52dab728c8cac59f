// Package dispatch 按方法与路径把网关事件分派到消息中继服务，
// 并把所有结果（包括 panic）转换为带固定 CORS 头的 JSON 响应。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/service"
)

// 路由路径
const (
	PathMessages = "/messages"
	PathInbound  = "/inbound"

	// EmailParam GET 请求使用的路径参数名
	EmailParam = "email"
)

// Relay 分派器依赖的业务操作
type Relay interface {
	SendMessage(ctx context.Context, input service.SendMessageInput) (*domain.Message, error)
	ReceiveReply(ctx context.Context, input service.InboundReplyInput) (*domain.Message, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Message, error)
}

// Router 请求分派器，无内部可变状态，可并发调用
type Router struct {
	relay Relay
	log   *zap.Logger
}

// NewRouter 创建分派器
func NewRouter(relay Relay, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{relay: relay, log: log}
}

// Handle 处理单个事件，总是返回格式完整的响应
func (r *Router) Handle(ctx context.Context, event Event) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic while handling event",
				zap.String("method", event.HTTPMethod),
				zap.String("path", event.Path),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			resp = internalError(ErrorBody{Error: msgInternalError, Details: fmt.Sprint(p)})
		}
	}()

	method := strings.ToUpper(strings.TrimSpace(event.HTTPMethod))
	switch method {
	case http.MethodOptions:
		return preflight()
	case http.MethodPost:
		switch normalizePath(event.Path) {
		case PathMessages:
			return r.sendMessage(ctx, event)
		case PathInbound:
			return r.receiveReply(ctx, event)
		default:
			return r.unsupported(msgUnsupportedPath, "POST "+event.Path)
		}
	case http.MethodGet:
		return r.listByEmail(ctx, event)
	default:
		return r.unsupported(msgUnsupported, event.HTTPMethod)
	}
}

// normalizePath 去掉末尾斜杠，空路径视为 /messages
func normalizePath(path string) string {
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	if path == "" {
		return PathMessages
	}
	return path
}

func (r *Router) sendMessage(ctx context.Context, event Event) Response {
	var req SendMessageRequest
	if err := decodeBody(event.Body, &req); err != nil {
		return r.fail(err)
	}

	message, err := r.relay.SendMessage(ctx, req.Input())
	if err != nil {
		resp := r.fail(err)
		if message != nil {
			resp = r.failWithID(err, message.MessageID)
		}
		return resp
	}
	return saved(msgMessageSaved, message)
}

func (r *Router) receiveReply(ctx context.Context, event Event) Response {
	var req InboundReplyRequest
	if err := decodeBody(event.Body, &req); err != nil {
		return r.fail(err)
	}

	message, err := r.relay.ReceiveReply(ctx, req.Input())
	if err != nil {
		return r.fail(err)
	}
	return saved(msgReplySaved, message)
}

func (r *Router) listByEmail(ctx context.Context, event Event) Response {
	email := event.PathParameter(EmailParam)
	if strings.TrimSpace(email) == "" {
		return r.fail(service.NewValidationError("Invalid request", "email path parameter is required"))
	}

	messages, err := r.relay.ListByEmail(ctx, email)
	if err != nil {
		return r.fail(err)
	}
	return messageList(messages)
}

func (r *Router) unsupported(msg, detail string) Response {
	r.log.Debug("unsupported operation", zap.String("operation", detail))
	return badRequest(ErrorBody{Error: msg, Details: fmt.Sprintf("%s: %s", service.ErrUnsupportedOperation, detail)})
}

func (r *Router) fail(err error) Response {
	return r.failWithID(err, "")
}

// failWithID 按错误分类生成响应
func (r *Router) failWithID(err error, messageID string) Response {
	var ve *service.ValidationError
	var de *service.DownstreamError

	switch {
	case errors.As(err, &ve):
		r.log.Debug("request rejected", zap.Error(err))
		return badRequest(ErrorBody{Error: ve.Reason, Errors: ve.Fields})
	case errors.Is(err, service.ErrUnsupportedOperation):
		return r.unsupported(msgUnsupported, err.Error())
	case errors.As(err, &de):
		msg, ok := downstreamMessages[de.Op]
		if !ok {
			msg = msgDownstreamFailed
		}
		return internalError(ErrorBody{Error: msg, Details: de.Detail(), MessageID: messageID})
	default:
		r.log.Error("unclassified error", zap.Error(err))
		return internalError(ErrorBody{Error: msgInternalError, Details: err.Error()})
	}
}
