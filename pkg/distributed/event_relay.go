package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultEventChannel = "mystery:events"

// LocalDeliverer 이 인스턴스에 연결된 클라이언트에게 이벤트 전달 (websocket.Hub)
type LocalDeliverer interface {
	Deliver(event models.RealtimeEvent)
}

// relayedEvent pub/sub으로 오가는 형식. payload는 다시 인코딩하지 않고 그대로 전달한다.
type relayedEvent struct {
	Origin      string          `json:"origin"`
	MatchID     string          `json:"match_id"`
	RecipientID int64           `json:"recipient_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	BestEffort  bool            `json:"best_effort,omitempty"`
}

// EventRelay Redis Pub/Sub 기반 실시간 이벤트 fan-out.
// 수신자가 어느 인스턴스에 연결돼 있든 모든 인스턴스가 받아 자기 hub로 전달한다.
type EventRelay struct {
	client     redis.UniversalClient
	local      LocalDeliverer
	logger     *zap.Logger
	instanceID string
	channel    string

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewEventRelay(client redis.UniversalClient, local LocalDeliverer, logger *zap.Logger) *EventRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRelay{
		client:     client,
		local:      local,
		logger:     logger,
		instanceID: uuid.NewString(),
		channel:    defaultEventChannel,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Notify 이벤트 발행. 자기 인스턴스도 구독 중이므로 로컬 전달은 구독 루프가 한다.
func (r *EventRelay) Notify(ctx context.Context, event models.RealtimeEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(relayedEvent{
		Origin:      r.instanceID,
		MatchID:     event.MatchID,
		RecipientID: event.RecipientID,
		Type:        event.Type,
		Payload:     payload,
		BestEffort:  event.BestEffort,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Start 구독 확인 후 수신 루프를 고루틴으로 실행
func (r *EventRelay) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.logger.Info("Event relay started",
		zap.String("instance_id", r.instanceID),
		zap.String("channel", r.channel))

	go r.loop(pubsub)
	return nil
}

func (r *EventRelay) loop(pubsub *redis.PubSub) {
	defer close(r.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)

		case <-r.stopChan:
			r.logger.Info("Event relay stopped")
			return
		}
	}
}

func (r *EventRelay) handle(raw string) {
	var event relayedEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		r.logger.Error("Failed to unmarshal relayed event", zap.Error(err))
		return
	}

	r.local.Deliver(models.RealtimeEvent{
		MatchID:     event.MatchID,
		RecipientID: event.RecipientID,
		Type:        event.Type,
		Payload:     event.Payload,
		BestEffort:  event.BestEffort,
	})
}

// Stop 수신 루프 종료. Start 전에 호출해도 안전하다.
func (r *EventRelay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// Wait 수신 루프가 끝날 때까지 대기
func (r *EventRelay) Wait() {
	<-r.done
}
