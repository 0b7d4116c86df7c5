package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers auth events.  Callers log failures and carry on.
type Publisher interface {
    Publish(ctx context.Context, ev AuthEvent) error
}

// Noop drops every event.  Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, AuthEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to AuthEventsQueue on the
// default exchange.  The connection is opened lazily and reopened after a
// failure.
type AMQPPublisher struct {
    url string

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{url: url} }

// dialTimeout bounds both the TCP connect and the AMQP handshake, so a
// broker that accepts but never answers cannot hold a caller for long.
const dialTimeout = 2 * time.Second

func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
    return amqp.DialConfig(url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
}

// dialBudget is dialTimeout cut down to what is left of ctx.
func dialBudget(ctx context.Context) time.Duration {
    d := dialTimeout
    if dl, ok := ctx.Deadline(); ok {
        if left := time.Until(dl); left < d {
            d = left
        }
    }
    return d
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev AuthEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    if err := ctx.Err(); err != nil {
        return err
    }
    ch, err := p.channel(dialBudget(ctx))
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Type:         ev.Type,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", AuthEventsQueue, false, false, pub); err != nil {
        log.Printf("rabbitmq: publish %s failed: %v", ev.Type, err)
        p.reset()
        return err
    }
    return nil
}

// channel returns an open channel with the queue declared.  Caller holds mu.
func (p *AMQPPublisher) channel(timeout time.Duration) (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        return p.ch, nil
    }
    p.reset()

    if timeout <= 0 {
        return nil, fmt.Errorf("rabbitmq dial: %w", context.DeadlineExceeded)
    }
    conn, err := dial(p.url, timeout)
    if err != nil {
        return nil, fmt.Errorf("rabbitmq dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq channel: %w", err)
    }
    // durable so events survive a broker restart
    if _, err := ch.QueueDeclare(AuthEventsQueue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *AMQPPublisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}
