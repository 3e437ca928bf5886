// Package notify fans newly raised anomalies out to a RabbitMQ exchange.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrNotReady = errors.New("amqp connection not ready")

const reconnectDelay = 5 * time.Second

// AMQPPublisher keeps a channel to the broker open, reconnecting whenever
// the connection drops.
type AMQPPublisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	ready   bool

	done    chan struct{}
	notify  chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

// NewAMQPPublisher creates a publisher for a topic exchange
func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		done:     make(chan struct{}),
		notify:   make(chan struct{}, 1),
	}
}

// Start begins the connect loop and waits for the first connection or ctx
func (p *AMQPPublisher) Start(ctx context.Context) error {
	p.wg.Add(1)
	go p.handleReconnect()

	select {
	case <-p.notify:
		log.Printf("✅ Connected to AMQP exchange %s", p.exchange)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) handleReconnect() {
	defer p.wg.Done()

	for {
		p.setReady(false)

		conn, ch, err := p.connect()
		if err != nil {
			log.Printf("⚠️  AMQP connect failed, retrying in %s: %v", reconnectDelay, err)
			select {
			case <-p.done:
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		p.setReady(true)
		select {
		case p.notify <- struct{}{}:
		default:
		}

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		if !waitClosed(connClosed, chClosed, p.done) {
			return
		}
		// a dead channel on a live connection is replaced with a fresh connection
		p.setReady(false)
		conn.Close()
	}
}

// waitClosed blocks until the connection or the channel closes, reporting
// true, or until done is closed, reporting false.
func waitClosed(connClosed, chClosed <-chan *amqp.Error, done <-chan struct{}) bool {
	select {
	case err := <-connClosed:
		log.Printf("🔴 AMQP connection closed: %v", err)
	case err := <-chClosed:
		log.Printf("🔴 AMQP channel closed: %v", err)
	case <-done:
		return false
	}
	return true
}

func (p *AMQPPublisher) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	// durable topic exchange; consumers bind on the anomaly type
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, err
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()
	return conn, ch, nil
}

func (p *AMQPPublisher) setReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

// Publish sends one persistent JSON message
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready || p.channel == nil {
		return ErrNotReady
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

// Close stops reconnecting and closes the connection
func (p *AMQPPublisher) Close() error {
	p.stopped.Do(func() { close(p.done) })
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	return nil
}
