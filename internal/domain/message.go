package domain

import "time"

// Direction 标识消息的来源方向
type Direction string

const (
	// DirectionOutbound 客户端通过 API 提交、并已转发邮件的消息
	DirectionOutbound Direction = "outbound"
	// DirectionInbound 由邮件回复关联回客户端的消息
	DirectionInbound Direction = "inbound"
)

// Message 表示中继系统中的一条消息记录。
//
// MessageID 与 Timestamp 只能由系统在写入时生成，调用方传入的值会被忽略。
type Message struct {
	MessageID string    `json:"messageId" gorm:"primaryKey;column:message_id;type:varchar(36)"`
	ClientID  string    `json:"clientId" gorm:"column:client_id;type:varchar(64);index;not null"`
	Message   string    `json:"message" gorm:"column:message;type:text"`
	Email     string    `json:"email" gorm:"column:email;type:varchar(254);index;not null"`
	Subject   string    `json:"subject,omitempty" gorm:"column:subject;type:varchar(500)"`
	Direction Direction `json:"direction" gorm:"column:direction;type:varchar(16);not null"`
	Timestamp time.Time `json:"timestamp" gorm:"column:created_at;index;not null"`
}

// TableName 指定消息表名
func (Message) TableName() string {
	return "messages"
}
