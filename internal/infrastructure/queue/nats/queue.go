package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/infrastructure/resilience"
)

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	log      *slog.Logger
}

type Options struct {
	ConnectTimeout      time.Duration
	ReconnectWait       time.Duration
	MaxReconnects       int
	DisableConnectRetry bool
	Resilience          *resilience.Policy
	Logger              *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	options = options.withDefaults()

	conn, err := nats.Connect(
		url,
		nats.Name("toolrank"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(!options.DisableConnectRetry),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			options.Logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			options.Logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	queue := &Queue{conn: conn, subject: subject, log: options.Logger}
	if options.Resilience != nil {
		queue.executor = resilience.New(*options.Resilience, classify)
	}
	return queue, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishSyncTask(ctx context.Context, task domain.SyncTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal sync task: %w", err)
	}

	publish := func(context.Context) error {
		return q.conn.Publish(q.subject, payload)
	}
	if q.executor != nil {
		err = q.executor.Do(ctx, "nats.publish", publish)
	} else {
		err = publish(ctx)
	}
	return wrapTemporary("nats publish", err)
}

// SubscribeSyncTasks blocks until the context ends, then drains; in-flight
// tasks finish. Malformed payloads are logged and dropped.
func (q *Queue) SubscribeSyncTasks(ctx context.Context, handler func(context.Context, domain.SyncTask) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "workers", func(msg *nats.Msg) {
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.SyncTask) error) {
	if ctx.Err() != nil {
		return
	}
	task, err := decodeSyncTask(data)
	if err != nil {
		q.log.Error("drop malformed sync task", "error", err)
		return
	}
	if err := handler(ctx, task); err != nil {
		q.log.Error("sync task handler failed", "task_id", task.ID, "type", string(task.Type), "error", err)
	}
}

func decodeSyncTask(data []byte) (domain.SyncTask, error) {
	var task domain.SyncTask
	if err := json.Unmarshal(data, &task); err != nil {
		return domain.SyncTask{}, fmt.Errorf("unmarshal sync task: %w", err)
	}
	if task.ID == "" || task.Type == "" {
		return domain.SyncTask{}, fmt.Errorf("sync task missing id or type")
	}
	return task, nil
}
