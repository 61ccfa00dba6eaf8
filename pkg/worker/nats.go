package worker

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

const (
	natsDurable   = "workers"
	natsSetupWait = 10 * time.Second

	// a dead consumer must not strand a task forever; redelivery
	// after this window keeps execution at-least-once
	natsAckWait = 30 * time.Minute
)

// NATSWorker is the queue backend: tasks are published to a JetStream
// work queue and executed by whichever process runs Run. Enqueue
// resolves its handle once the task is durably queued; task outcomes
// surface through build records.
type NATSWorker struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	subject string
	runner  *Runner
	l       *zap.Logger
}

// NATSOption configures the queue backend
type NATSOption func(*NATSWorker)

// NATSLogger sets a logger
func NATSLogger(l *zap.Logger) NATSOption {
	return func(w *NATSWorker) {
		if l != nil {
			w.l = l
		}
	}
}

// NewNATS connects to the NATS server and ensures the task stream
// exists. queue names the stream; tasks travel on "<queue>.tasks".
func NewNATS(url, queue string, runner *Runner, opts ...NATSOption) (*NATSWorker, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, status.ErrQueueUnavailable.Wrap(err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, status.ErrQueueUnavailable.Wrap(err)
	}

	w := &NATSWorker{
		conn:    conn,
		js:      js,
		subject: queue + ".tasks",
		runner:  runner,
		l:       zap.NewNop(),
	}
	for _, apply := range opts {
		apply(w)
	}

	ctx, cancel := context.WithTimeout(context.Background(), natsSetupWait)
	defer cancel()
	w.stream, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      queue,
		Subjects:  []string{w.subject},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		conn.Close()
		return nil, status.ErrQueueUnavailable.Wrap(err)
	}
	return w, nil
}

func (w *NATSWorker) Name() string { return BackendNATS }

func (w *NATSWorker) Enqueue(ctx context.Context, task Task) (*Handle, error) {
	data, err := jsoniter.Marshal(task)
	if err != nil {
		return nil, err
	}
	if _, err := w.js.Publish(ctx, w.subject, data); err != nil {
		return nil, status.ErrQueueUnavailable.Wrap(err)
	}
	w.l.Info("task queued", zap.Stringer("task", task))

	handle := newHandle(task)
	handle.complete(nil)
	return handle, nil
}

// Run consumes queued tasks until the context ends. Successful and
// permanently failed tasks are acknowledged; the runner has already
// applied retry policy and routed permanent failures to the failure
// sink, so redelivery is reserved for consumer death.
func (w *NATSWorker) Run(ctx context.Context) error {
	cons, err := w.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   natsDurable,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   natsAckWait,
	})
	if err != nil {
		return status.ErrQueueUnavailable.Wrap(err)
	}

	consume, err := cons.Consume(func(msg jetstream.Msg) {
		var task Task
		if err := jsoniter.Unmarshal(msg.Data(), &task); err != nil {
			w.l.Error("dropping undecodable task", zap.Error(err))
			msg.Term()
			return
		}
		if err := w.runner.Run(ctx, task); err != nil {
			msg.Term()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return status.ErrQueueUnavailable.Wrap(err)
	}
	defer consume.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// Close drains the connection, letting in-flight publishes finish
func (w *NATSWorker) Close() error {
	return w.conn.Drain()
}
