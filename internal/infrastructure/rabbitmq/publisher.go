package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
)

// RoutingKeyCommitted は予約確定イベントのルーティングキー
const RoutingKeyCommitted = "reservation.committed"

// CommittedEvent は予約確定時に送信するメッセージ
type CommittedEvent struct {
	TransactionID string               `json:"transactionId"`
	TripID        string               `json:"tripId"`
	BookedBy      string               `json:"bookedBy"`
	Seats         []CommittedEventSeat `json:"seats"`
	CommittedAt   time.Time            `json:"committedAt"`
}

type CommittedEventSeat struct {
	SeatNumber    int    `json:"seatNumber"`
	PassengerName string `json:"passengerName"`
	Email         string `json:"email"`
}

// NewCommittedEvent は確定済み取引からイベントを作成する
func NewCommittedEvent(tx *reservation.Transaction) CommittedEvent {
	ev := CommittedEvent{
		TransactionID: tx.ID,
		TripID:        tx.TripID,
		BookedBy:      tx.BookedBy,
		Seats:         make([]CommittedEventSeat, 0, len(tx.SeatNumbers)),
	}
	if tx.FinishedAt != nil {
		ev.CommittedAt = tx.FinishedAt.UTC()
	}
	for _, r := range tx.Manifest() {
		ev.Seats = append(ev.Seats, CommittedEventSeat{SeatNumber: r.SeatNumber, PassengerName: r.Name, Email: r.Email})
	}
	return ev
}

// channel は amqp.Channel のうち送信に使う操作
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher は予約確定イベントを topic exchange に送信する
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// NewPublisher はブローカーに接続し、exchange を宣言する
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("RabbitMQチャネル作成に失敗しました: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange宣言に失敗しました: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishCommitted は確定した予約を永続メッセージとして送信する
func (p *Publisher) PublishCommitted(ctx context.Context, tx *reservation.Transaction) error {
	body, err := json.Marshal(NewCommittedEvent(tx))
	if err != nil {
		return fmt.Errorf("イベントの変換に失敗: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    tx.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyCommitted, false, false, msg); err != nil {
		return fmt.Errorf("イベント送信に失敗: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
