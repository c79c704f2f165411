package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// WebhookConfig holds settings for the webhook output sink.
type WebhookConfig struct {
	URL        string
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	Headers    map[string]string
	// InitialInterval is the first retry wait; it doubles on every retry.
	InitialInterval time.Duration
	Logger          *logrus.Entry
}

// WebhookWriter posts batched JSONL to a remote HTTP endpoint.
type WebhookWriter struct {
	batch     *batchWriter
	client    *http.Client
	url       string
	headers   map[string]string
	retries   int
	interval  time.Duration
	log       *logrus.Entry
	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex // protects closed
	closed    bool
}

// NewWebhookWriter creates a writer that batches results and POSTs them to url.
func NewWebhookWriter(cfg WebhookConfig) *WebhookWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	w := &WebhookWriter{
		client:   &http.Client{Timeout: cfg.Timeout},
		url:      cfg.URL,
		headers:  cfg.Headers,
		retries:  cfg.MaxRetries,
		interval: cfg.InitialInterval,
		log:      cfg.Logger.WithField("sink", "webhook"),
		queue:    make(chan []byte, 64),
		done:     make(chan struct{}),
	}

	w.batch = newBatchWriter(cfg.BatchSize, func(data []byte) error {
		// Hold w.mu during the channel send to prevent Close() from
		// closing the channel while we're sending.
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return nil
		}
		// Non-blocking send; drop + warn if queue is full
		select {
		case w.queue <- data:
		default:
			w.log.Warnf("queue full, dropping %d bytes", len(data))
		}
		w.mu.Unlock()
		return nil
	})

	go w.sender()
	return w
}

func (w *WebhookWriter) sender() {
	defer close(w.done)
	for data := range w.queue {
		w.postWithRetry(data)
	}
}

func (w *WebhookWriter) postWithRetry(data []byte) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.interval
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	b := backoff.WithMaxRetries(eb, uint64(w.retries-1))

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := w.post(data); err != nil {
			w.log.WithError(err).Warnf("POST failed (attempt %d/%d)", attempt, w.retries)
			return err
		}
		return nil
	}, b)
	if err != nil {
		w.log.Errorf("dropping %d bytes after %d attempts", len(data), attempt)
	}
}

func (w *WebhookWriter) post(data []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func (w *WebhookWriter) Write(res *Result) error {
	return w.batch.write(res)
}

// Close flushes remaining data and waits for the sender goroutine to drain.
func (w *WebhookWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.batch.close()

		// Mark closed so flushFn from any late write() won't send to queue
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		close(w.queue)
	})

	// Wait for sender goroutine with deadline
	select {
	case <-w.done:
	case <-time.After(30 * time.Second):
		w.log.Warn("close timed out waiting for sender")
		return fmt.Errorf("webhook: close timed out")
	}
	return err
}
