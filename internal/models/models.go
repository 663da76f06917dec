package models

import "time"

// Account 是账号的持久化记录。文件存储直接按 JSON tag 序列化，
// Postgres 存储复用同一结构体的 gorm tag。
type Account struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	Username     string     `json:"username" gorm:"uniqueIndex;size:64;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"passwordHash" gorm:"not null"`
	Verified     bool       `json:"verified"`
	VerifyCode   string     `json:"verifyCode,omitempty" gorm:"size:16"`
	CodeIssuedAt *time.Time `json:"codeIssuedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Attachment 只携带元数据，二进制内容不经过中继。
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ChatMessage 是广播的消息体，服务端不落库，转发完即丢弃。
type ChatMessage struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channelId"`
	Author      string       `json:"author"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}
