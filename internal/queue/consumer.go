package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// RunAuditConsumer consumes AuthEventsQueue and appends one line per event to
// path.  It reconnects with exponential backoff and returns only when ctx is
// cancelled.
func RunAuditConsumer(ctx context.Context, url, path string) error {
    backoff := time.Second
    for {
        conn, err := dial(url, dialTimeout)
        if err != nil {
            log.Printf("audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, path)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Printf("audit-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, path string) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("audit-consumer: set QoS failed: %v", err)
    }
    if _, err := ch.QueueDeclare(AuthEventsQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(AuthEventsQueue, "audit", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(d.Body, path); err != nil {
                log.Printf("audit-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(body []byte, path string) error {
    var ev AuthEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    if dir := filepath.Dir(path); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            return fmt.Errorf("mkdir %s: %w", dir, err)
        }
    }
    f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open audit log: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write audit log: %w", err)
    }
    return nil
}

// formatLine renders one audit line, e.g.
//   [2026-03-01T09:00:00Z] session.started | user_id=u-1 | email="a@b.c" | role=vendor | channel=self-service
func formatLine(ev AuthEvent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | user_id=%s", ev.OccurredAt, ev.Type, ev.UserID)
    if ev.Email != "" {
        fmt.Fprintf(&b, " | email=%q", ev.Email)
    }
    if ev.Role != "" {
        fmt.Fprintf(&b, " | role=%s", ev.Role)
    }
    if ev.Channel != "" {
        fmt.Fprintf(&b, " | channel=%s", ev.Channel)
    }
    if ev.Active != nil {
        fmt.Fprintf(&b, " | active=%t", *ev.Active)
    }
    if ev.ActorID != "" {
        fmt.Fprintf(&b, " | actor_id=%s", ev.ActorID)
    }
    b.WriteByte('\n')
    return b.String()
}
