package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships digests to a topic. *kafka.Producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	Service        string        // reported in every digest
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
	IncludeWarn    bool
	PublishTimeout time.Duration
}

// DigestEntry is one distinct (level, caller, message) seen during a window.
// Fields are sampled from the most recent occurrence.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Digest is the payload published per flush.
type Digest struct {
	Service string        `json:"service"`
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	Total   int           `json:"total"`
	Entries []DigestEntry `json:"entries"`
}

type LogCollector struct {
	config  *CollectionConfig
	now     func() time.Time
	mu      sync.Mutex
	entries map[digestKey]*DigestEntry
	since   time.Time
	closed  bool
	flushes chan Digest
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

type digestKey struct {
	level   string
	caller  string
	message string
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	return newLogCollector(config, time.Now)
}

func newLogCollector(config *CollectionConfig, now func() time.Time) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}
	c := &LogCollector{
		config:  config,
		now:     now,
		entries: make(map[digestKey]*DigestEntry),
		since:   now(),
		flushes: make(chan Digest, 4),
		stop:    make(chan struct{}),
	}
	c.wg.Add(2)
	go c.tick()
	go c.publish()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	k := digestKey{level: level, caller: caller, message: message}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	e, ok := c.entries[k]
	if !ok {
		e = &DigestEntry{Level: level, Message: message, Caller: caller, FirstSeen: now}
		c.entries[k] = e
	}
	e.Count++
	e.LastSeen = now
	e.Fields = fields
	if len(c.entries) >= c.config.CountThreshold {
		c.enqueueLocked(c.cutLocked(now))
	}
}

// cutLocked drains the window into a digest ordered by count, most frequent first.
func (c *LogCollector) cutLocked(now time.Time) *Digest {
	if len(c.entries) == 0 {
		return nil
	}
	d := &Digest{
		Service: c.config.Service,
		From:    c.since,
		To:      now,
		Entries: make([]DigestEntry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		d.Entries = append(d.Entries, *e)
		d.Total += e.Count
	}
	sort.Slice(d.Entries, func(i, j int) bool {
		if d.Entries[i].Count != d.Entries[j].Count {
			return d.Entries[i].Count > d.Entries[j].Count
		}
		return d.Entries[i].FirstSeen.Before(d.Entries[j].FirstSeen)
	})
	c.entries = make(map[digestKey]*DigestEntry)
	c.since = now
	return d
}

func (c *LogCollector) flush(final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(c.cutLocked(c.now()))
	if final {
		c.closed = true
		close(c.flushes)
	}
}

// enqueueLocked never blocks the logging caller; a full queue drops the digest.
func (c *LogCollector) enqueueLocked(d *Digest) {
	if d == nil {
		return
	}
	select {
	case c.flushes <- *d:
	default:
		fmt.Fprintf(os.Stderr, "log collector: dropped digest with %d entries\n", len(d.Entries))
	}
}

func (c *LogCollector) tick() {
	defer c.wg.Done()
	t := time.NewTicker(c.config.TimeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.flush(false)
		case <-c.stop:
			c.flush(true)
			return
		}
	}
}

func (c *LogCollector) publish() {
	defer c.wg.Done()
	for d := range c.flushes {
		if c.config.Publisher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, d); err != nil {
			fmt.Fprintf(os.Stderr, "log collector: publish to %s: %v\n", c.config.Topic, err)
		}
		cancel()
	}
}

// Close flushes the open window and waits for pending publishes.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
