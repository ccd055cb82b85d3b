package messaging

import (
	"log"
	"sync"
	"time"

	"github.com/visual-alchemy/blackgate-project/store"
)

// OutboxStore is the persistence the drainer needs; *store.DB implements it.
type OutboxStore interface {
	ListPendingOutbox(limit int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	IncrementOutboxRetries(id int64) error
	PurgeSentOutbox(before time.Time) (int64, error)
}

// Publisher sends one encoded message; *Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

const (
	drainBatch           = 50
	sentRetention        = 24 * time.Hour
	purgeEveryNth        = 100
	defaultDrainInterval = 2 * time.Second
)

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       OutboxStore
	client   Publisher
	interval time.Duration
	logFn    func(format string, args ...any)

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
	runs     int
}

func NewOutboxDrainer(db OutboxStore, client Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		logFn:    log.Printf,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetLogFunc replaces log.Printf.
func (d *OutboxDrainer) SetLogFunc(fn func(format string, args ...any)) {
	if fn != nil {
		d.logFn = fn
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

// Stop drains once more and waits for the loop to exit.
func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	<-d.done
}

func (d *OutboxDrainer) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			d.drain()
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

// drain publishes one batch of pending messages. Failed messages stay pending
// with their retry count raised.
func (d *OutboxDrainer) drain() {
	msgs, err := d.db.ListPendingOutbox(drainBatch)
	if err != nil {
		d.logFn("outbox: list pending: %v", err)
		return
	}
	for _, msg := range msgs {
		if err := d.client.Publish(msg.Topic, msg.Payload); err != nil {
			d.logFn("outbox: publish %s to %s failed: %v", msg.MsgType, msg.Topic, err)
			d.db.IncrementOutboxRetries(msg.ID)
			// Keep order: later messages wait for this one.
			break
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			d.logFn("outbox: ack %d: %v", msg.ID, err)
		}
	}

	d.runs++
	if d.runs%purgeEveryNth == 0 {
		if n, err := d.db.PurgeSentOutbox(time.Now().Add(-sentRetention)); err != nil {
			d.logFn("outbox: purge: %v", err)
		} else if n > 0 {
			d.logFn("outbox: purged %d sent messages", n)
		}
	}
}
