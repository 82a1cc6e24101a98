package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/pkg/metrics"
	"go.uber.org/zap"
)

// Publisher 이벤트를 수신자가 연결된 인스턴스로 보낸다. 단일 인스턴스면 Hub 자신.
type Publisher interface {
	Notify(ctx context.Context, event models.RealtimeEvent) error
}

// PresenceTracker 인스턴스 간 접속 상태 공유 (distributed.RedisPresence)
type PresenceTracker interface {
	Join(ctx context.Context, matchID string, userID int64) error
	Leave(ctx context.Context, matchID string, userID int64) error
	Refresh(ctx context.Context, matchID string, userID int64) error
	IsOnline(ctx context.Context, matchID string, userID int64) (bool, error)
}

// Envelope 클라이언트로 나가는 메시지
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type clientKey struct {
	matchID string
	userID  int64
}

// presenceUpdate 접속/해제 순서대로 처리해야 하는 presence 변경
type presenceUpdate struct {
	client   *Client
	replaced bool
	online   bool
}

type HubOptions struct {
	Presence       PresenceTracker
	Metrics        metrics.MysteryMetrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

// Hub 매치 채팅 WebSocket 연결 관리.
// clients 맵은 Run 고루틴만 변경하고, 다른 고루틴은 mu로 읽기만 한다.
type Hub struct {
	clients map[clientKey]*Client
	mu      sync.RWMutex

	deliver    chan models.RealtimeEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// presence 갱신은 한 고루틴이 큐 순서대로 처리한다 (Join 이전에 Leave가 실행되지 않도록)
	presenceQueue chan presenceUpdate

	publisher Publisher
	presence  PresenceTracker
	metrics   metrics.MysteryMetrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func NewHub(opts HubOptions) *Hub {
	h := &Hub{
		clients:    make(map[clientKey]*Client),
		deliver:    make(chan models.RealtimeEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		presence:   opts.Presence,

		presenceQueue: make(chan presenceUpdate, 256),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		upgrader:   newUpgrader(opts.AllowedOrigins),
	}
	if h.metrics == nil {
		h.metrics = metrics.Nop{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.publisher = h
	return h
}

// SetPublisher 여러 인스턴스로 운영할 때 Redis relay로 교체
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Run ctx가 끝날 때까지 Hub 실행
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	go h.runPresence(ctx)

	for {
		select {
		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.removeClient(ctx, client, false)

		case event := <-h.deliver:
			h.deliverEvent(ctx, event)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Notify 로컬 연결로만 전달 (단일 인스턴스 모드의 Publisher)
func (h *Hub) Notify(_ context.Context, event models.RealtimeEvent) error {
	h.Deliver(event)
	return nil
}

// Deliver 이 인스턴스에 연결된 수신자에게 전달 예약. Hub가 멈췄으면 버린다.
func (h *Hub) Deliver(event models.RealtimeEvent) {
	select {
	case h.deliver <- event:
	case <-h.done:
	}
}

// IsOnline 매치 채널 접속 여부. presence가 있으면 클러스터 전체 기준
func (h *Hub) IsOnline(ctx context.Context, matchID string, userID int64) (bool, error) {
	if h.presence != nil {
		return h.presence.IsOnline(ctx, matchID, userID)
	}
	return h.isLocallyConnected(matchID, userID), nil
}

func (h *Hub) isLocallyConnected(matchID string, userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientKey{matchID: matchID, userID: userID}]
	return ok
}

func (h *Hub) registerClient(ctx context.Context, client *Client) {
	key := client.key()

	h.mu.Lock()
	old, exists := h.clients[key]
	h.clients[key] = client
	total := len(h.clients)
	h.mu.Unlock()

	// 같은 매치에 다시 접속하면 기존 연결을 닫는다
	if exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("matchId", key.matchID),
			zap.Int64("userId", key.userID))
	}

	h.metrics.ConnectionsOpen(total)
	h.logger.Info("WebSocket client registered",
		zap.String("matchId", key.matchID),
		zap.Int64("userId", key.userID),
		zap.Int("totalClients", total))

	h.enqueuePresence(ctx, presenceUpdate{client: client, replaced: exists, online: true})
}

// removeClient 연결 해제. 교체된 뒤 늦게 도착한 해제 요청은 무시한다.
func (h *Hub) removeClient(ctx context.Context, client *Client, slow bool) {
	key := client.key()

	h.mu.Lock()
	current, exists := h.clients[key]
	if !exists || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, key)
	total := len(h.clients)
	h.mu.Unlock()

	close(client.send)
	h.metrics.ConnectionsOpen(total)
	h.logger.Info("WebSocket client unregistered",
		zap.String("matchId", key.matchID),
		zap.Int64("userId", key.userID),
		zap.Bool("slowConsumer", slow),
		zap.Int("totalClients", total))

	h.enqueuePresence(ctx, presenceUpdate{client: client, online: false})
}

func (h *Hub) enqueuePresence(ctx context.Context, update presenceUpdate) {
	select {
	case h.presenceQueue <- update:
	case <-ctx.Done():
	}
}

// runPresence presence 저장소 갱신과 상대방 알림을 등록 순서대로 실행
func (h *Hub) runPresence(ctx context.Context) {
	for {
		select {
		case update := <-h.presenceQueue:
			h.announce(update.client, update.replaced, update.online)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) deliverEvent(ctx context.Context, event models.RealtimeEvent) {
	// Run 고루틴만 clients를 변경하므로 여기서는 잠금 없이 읽는다
	client, exists := h.clients[clientKey{matchID: event.MatchID, userID: event.RecipientID}]
	if !exists {
		return
	}

	select {
	case client.send <- &Envelope{Type: event.Type, Payload: event.Payload}:
	default:
		if event.BestEffort {
			h.logger.Debug("Dropped best-effort event for slow client",
				zap.String("matchId", event.MatchID),
				zap.String("type", event.Type))
			return
		}
		// 메시지는 저장돼 있으므로 재접속 후 기록으로 복구할 수 있다
		h.logger.Warn("Client send channel full, disconnecting",
			zap.String("matchId", event.MatchID),
			zap.Int64("userId", event.RecipientID))
		h.removeClient(ctx, client, true)
	}
}

// announce presence 갱신 후 상대방에게 접속 상태 이벤트 전송
func (h *Hub) announce(client *Client, replaced, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if h.presence != nil {
		var err error
		switch {
		case online && replaced:
			err = h.presence.Refresh(ctx, client.matchID, client.userID)
		case online:
			err = h.presence.Join(ctx, client.matchID, client.userID)
		default:
			err = h.presence.Leave(ctx, client.matchID, client.userID)
		}
		if err != nil {
			h.logger.Warn("Failed to update presence", zap.String("matchId", client.matchID), zap.Error(err))
		}
	}

	if replaced {
		return
	}
	if !online {
		// 다른 기기나 인스턴스에 연결이 남아 있으면 offline을 알리지 않는다
		still, err := h.IsOnline(ctx, client.matchID, client.userID)
		if err == nil && still {
			return
		}
	}

	err := h.publisher.Notify(ctx, models.RealtimeEvent{
		MatchID:     client.matchID,
		RecipientID: client.partnerID,
		Type:        models.EventPresence,
		Payload:     models.PresencePayload{MatchID: client.matchID, UserID: client.userID, Online: online},
		BestEffort:  true,
	})
	if err != nil {
		h.logger.Warn("Failed to publish presence", zap.String("matchId", client.matchID), zap.Error(err))
	}
}

// refresh ping 주기마다 presence TTL 연장
func (h *Hub) refresh(client *Client) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.Refresh(ctx, client.matchID, client.userID); err != nil {
		h.logger.Debug("Failed to refresh presence", zap.Error(err))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[clientKey]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
	h.metrics.ConnectionsOpen(0)
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}
