// Package marker 实现嵌入在通知邮件正文中的客户端关联标记。
//
// 标记格式（版本 1）：
//
//	marker = "<!--" *(WSP / CRLF) "ClientId:" *(WSP / CRLF) 1*DIGIT *(WSP / CRLF) "-->"
//
// 出站通知在正文末尾追加一行标记，客户回复时邮件客户端通常会把原文引用在回复下方，
// 标记随引用一起回到系统。入站解析只取第一个匹配，忽略线程中更早的引用。
// 邮件客户端折行后标记内部可能出现换行，解析时一并接受。
//
// 追加标记前正文中已有的标记会被破坏（"<!--" 改写为 "<!- -"），
// 保证追加的标记是正文里唯一可解析的标记。
package marker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// Version 当前标记格式版本
	Version = 1

	// Open 标记起始符
	Open = "<!--"
	// Close 标记结束符
	Close = "-->"
	// Label 客户端 ID 标签
	Label = "ClientId:"
)

var (
	// ErrInvalidClientID 客户端 ID 不是纯数字，无法编码为可回收的标记
	ErrInvalidClientID = errors.New("client id must be one or more decimal digits")

	pattern = regexp.MustCompile(`<!--\s*ClientId:\s*([0-9]+)\s*-->`)
	digits  = regexp.MustCompile(`^[0-9]+$`)
)

// Valid 判断客户端 ID 是否可以编码
func Valid(clientID string) bool {
	return digits.MatchString(clientID)
}

// Encode 生成单个标记，例如 "<!-- ClientId: 42 -->"
func Encode(clientID string) (string, error) {
	if !Valid(clientID) {
		return "", ErrInvalidClientID
	}
	return fmt.Sprintf("%s %s %s %s", Open, Label, clientID, Close), nil
}

// defused 替换已有标记的起始符
const defused = "<!- -"

// Neutralize 破坏正文中所有可被解析的标记，其余内容不变
func Neutralize(body string) string {
	// 改写不会产生新的 "<!--"，循环必然结束
	for pattern.MatchString(body) {
		body = pattern.ReplaceAllStringFunc(body, func(m string) string {
			return defused + strings.TrimPrefix(m, Open)
		})
	}
	return body
}

// Append 在正文末尾追加标记行，正文中原有的标记先被破坏
func Append(body, clientID string) (string, error) {
	m, err := Encode(clientID)
	if err != nil {
		return "", err
	}

	body = strings.TrimRight(Neutralize(body), "\r\n")
	if body == "" {
		return m, nil
	}
	return body + "\n\n" + m, nil
}

// Extract 返回文本中第一个标记携带的客户端 ID
func Extract(text string) (string, bool) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}
