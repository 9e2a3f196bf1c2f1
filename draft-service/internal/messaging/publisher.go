package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"story-draft-server/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DraftUpdatesExchange - fanout exchange, в который публикуются события
// о сохранении черновиков. Консьюмеры (например, AI-конвейер) подписываются
// собственными очередями.
const DraftUpdatesExchange = "draft_updates"

// DraftSavedEvent - событие об успешном сохранении черновика.
type DraftSavedEvent struct {
	DraftKey    string            `json:"draftKey"`
	OwnerWallet string            `json:"ownerWallet,omitempty"`
	StoryType   string            `json:"storyType"`
	Version     int               `json:"version"`
	Reason      models.SaveReason `json:"reason"`
	Created     bool              `json:"created"`
	SavedAt     int64             `json:"savedAt"`
}

// DraftEventPublisher публикует события жизненного цикла черновиков.
type DraftEventPublisher interface {
	PublishDraftSaved(ctx context.Context, event DraftSavedEvent) error
}

// Compile-time check
var _ DraftEventPublisher = (*rabbitMQDraftPublisher)(nil)

type rabbitMQDraftPublisher struct {
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewRabbitMQDraftPublisher открывает канал и объявляет fanout exchange.
func NewRabbitMQDraftPublisher(conn *amqp.Connection, logger *zap.Logger) (DraftEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("draft publisher: не удалось открыть канал: %w", err)
	}
	err = ch.ExchangeDeclare(
		DraftUpdatesExchange, // name
		"fanout",             // kind
		true,                 // durable
		false,                // auto-delete
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("draft publisher: не удалось объявить exchange '%s': %w", DraftUpdatesExchange, err)
	}
	return &rabbitMQDraftPublisher{
		channel: ch,
		logger:  logger.Named("DraftPublisher"),
	}, nil
}

// PublishDraftSaved публикует событие сохранения. Ошибка публикации не должна
// ломать путь сохранения: вызывающий логирует ее и продолжает.
func (p *rabbitMQDraftPublisher) PublishDraftSaved(ctx context.Context, event DraftSavedEvent) error {
	if p.channel == nil {
		return errors.New("канал RabbitMQ не инициализирован")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события DraftSaved: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		DraftUpdatesExchange, // exchange
		"",                   // routing key (fanout игнорирует)
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "draft-service",
		},
	)
	if err != nil {
		p.logger.Warn("Failed to publish DraftSaved event",
			zap.String("draftKey", event.DraftKey), zap.Error(err))
		return fmt.Errorf("ошибка публикации события DraftSaved: %w", err)
	}
	p.logger.Debug("DraftSaved event published", zap.String("draftKey", event.DraftKey), zap.Int("version", event.Version))
	return nil
}
