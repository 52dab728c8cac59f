package dispatch

// Event 网关形态的入站请求
type Event struct {
	HTTPMethod     string            `json:"httpMethod"`
	Path           string            `json:"path"`
	PathParameters map[string]string `json:"pathParameters,omitempty"`
	Body           string            `json:"body,omitempty"`
}

// PathParameter 读取路径参数，不存在时返回空串
func (e Event) PathParameter(name string) string {
	if e.PathParameters == nil {
		return ""
	}
	return e.PathParameters[name]
}

// Response 出站响应，Body 为 JSON 文本
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}
