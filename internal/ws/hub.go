package ws

import (
	"encoding/json"
	"sync/atomic"

	"github.com/kaanhena/knchat-server/internal/metrics"
)

// Hub 是连接注册表、消息中继和在线名单推送的单一事件循环。
// register/unregister/broadcast 都汇入同一个 goroutine 处理，
// 因此所有客户端看到的消息顺序和名单变更顺序是同一个全序。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	snapshot   chan chan []string
	online     int32
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		snapshot:   make(chan chan []string),
	}
}

// Run 处理事件循环，进程生命周期内常驻。
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Inc()
			h.pushRoster()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				atomic.StoreInt32(&h.online, int32(len(h.clients)))
				metrics.WsConnections.Dec()
				h.pushRoster()
			}
		case msg := <-h.broadcast:
			if h.fanout(msg) {
				// 投递中摘掉了慢消费者，名单变了，立刻补推一次
				h.pushRoster()
			}
		case reply := <-h.snapshot:
			out := make([]string, 0, len(h.clients))
			for c := range h.clients {
				out = append(out, c.username)
			}
			reply <- out
		}
	}
}

// fanout 向每个客户端的发送队列做非阻塞投递，返回是否有连接被摘掉。
// 队列满说明对端已经停摆，直接摘掉连接，绝不让慢消费者拖住循环。
func (h *Hub) fanout(msg []byte) bool {
	evicted := false
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Dec()
			evicted = true
		}
	}
	return evicted
}

type rosterEntry struct {
	Username string `json:"username"`
}

// pushRoster 把完整在线名单推给所有连接：全量替换，不发增量，
// 客户端收到什么就展示什么，不需要对账。
// 推送本身也可能摘掉慢消费者，那刚发出去的名单就又旧了，
// 重新生成再推，集合每轮只会变小，必然收敛。
func (h *Hub) pushRoster() {
	for {
		users := make([]rosterEntry, 0, len(h.clients))
		for c := range h.clients {
			users = append(users, rosterEntry{Username: c.username})
		}
		evt := map[string]interface{}{"type": "onlineUsers", "users": users}
		b, err := json.Marshal(evt)
		if err != nil {
			return
		}
		if !h.fanout(b) {
			return
		}
	}
}

// Snapshot 返回当前在线用户名列表，按连接计数，同一用户多端各算一条。
func (h *Hub) Snapshot() []string {
	reply := make(chan []string, 1)
	h.snapshot <- reply
	return <-reply
}

// Online 返回当前连接数，供健康检查等只读路径使用。
func (h *Hub) Online() int { return int(atomic.LoadInt32(&h.online)) }
