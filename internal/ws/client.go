package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kaanhena/knchat-server/internal/auth"
	"github.com/kaanhena/knchat-server/internal/config"
	"github.com/kaanhena/knchat-server/internal/metrics"
	"github.com/kaanhena/knchat-server/internal/models"
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	username  string
	announced bool
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundEvent 覆盖两种客户端事件：registerUser 只带 username，
// chatMessage 带完整消息字段。
type inboundEvent struct {
	Type        string              `json:"type"`
	Username    string              `json:"username"`
	ID          string              `json:"id"`
	ChannelID   string              `json:"channelId"`
	Author      string              `json:"author"`
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type outboundMessage struct {
	Type string `json:"type"`
	models.ChatMessage
}

// Serve 升级 WebSocket 连接。token 通过 Authorization 头或 token 查询参数传入，
// 无有效 token 不升级；registerUser 里宣告的身份必须与 token 一致。
func Serve(h *Hub, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[len("Bearer "):])
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseToken(token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), username: claims.Username}

		go client.writePump()
		client.readPump()
	}
}

// readPump 收取入站帧。传输层没有错误通道，非法帧一律静默丢弃。
func (c *Client) readPump() {
	defer func() {
		// 连接关了就立刻触发 Leave，没宣告过身份的连接 Hub 会当 no-op 处理。
		if c.announced {
			c.hub.unregister <- c
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundEvent
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		switch in.Type {
		case "registerUser":
			if c.announced || in.Username != c.username {
				continue
			}
			c.announced = true
			c.hub.register <- c
		case "chatMessage":
			if !c.announced || in.Text == "" && len(in.Attachments) == 0 {
				continue
			}
			msg := models.ChatMessage{
				ID:          in.ID,
				ChannelID:   in.ChannelID,
				Author:      in.Author,
				Text:        in.Text,
				Attachments: in.Attachments,
				CreatedAt:   in.CreatedAt,
			}
			if msg.ID == "" {
				msg.ID = uuid.NewString()
			}
			if msg.Author == "" {
				msg.Author = c.username
			}
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = time.Now()
			}
			b, err := json.Marshal(outboundMessage{Type: "chatMessage", ChatMessage: msg})
			if err != nil {
				log.Error().Err(err).Str("author", msg.Author).Msg("marshal chat message")
				continue
			}
			metrics.WsMessagesTotal.Inc()
			c.hub.broadcast <- b
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
