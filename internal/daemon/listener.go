package daemon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/muselab-d2x/releasegate/internal/errors"
	"github.com/muselab-d2x/releasegate/internal/logfields"
	"github.com/muselab-d2x/releasegate/internal/observability"
	"github.com/muselab-d2x/releasegate/internal/pipeline"
	"github.com/muselab-d2x/releasegate/internal/runner"
)

// replyWait bounds how long an upstream trigger waits for its run to finish
// before the listener answers with an accepted-but-pending summary.
const replyWait = 2 * time.Hour

// TriggerRequest is the wire format an upstream pipeline publishes to start
// a run. Secrets are the fixed pass-through set; they are registered for the
// run and never logged or persisted.
type TriggerRequest struct {
	Source  string            `json:"source,omitempty"` // upstream pipeline identifier
	Secrets map[string]string `json:"secrets,omitempty"`
}

// TriggerReply is the summary published back to the requester.
type TriggerReply struct {
	RunID      string        `json:"run_id,omitempty"`
	Status     runner.Status `json:"status"`
	FailedStep string        `json:"failed_step,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// TriggerListener subscribes to the message bus and turns published requests
// into upstream-triggered runs.
type TriggerListener struct {
	conn    *nats.Conn
	subject string
	sink    enqueuer
	sub     *nats.Subscription
	workers WorkerGroup
}

// NewTriggerListener connects to the bus. Subscription happens in Start.
func NewTriggerListener(url, subject string, sink enqueuer) (*TriggerListener, error) {
	conn, err := nats.Connect(url,
		nats.Name("releasegate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityFatal, "connecting to message bus").
			WithContext("url", url)
	}
	return &TriggerListener{conn: conn, subject: subject, sink: sink}, nil
}

// Start subscribes to the trigger subject.
func (l *TriggerListener) Start(ctx context.Context) error {
	sub, err := l.conn.Subscribe(l.subject, func(msg *nats.Msg) {
		l.handle(ctx, msg)
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryDaemon, errors.SeverityFatal, "subscribing to trigger subject").
			WithContext("subject", l.subject)
	}
	l.sub = sub
	observability.InfoContext(ctx, "trigger listener started")
	return nil
}

// Stop unsubscribes and closes the connection. Replies for runs already in
// flight are abandoned.
func (l *TriggerListener) Stop() {
	if l.sub != nil {
		_ = l.sub.Unsubscribe()
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.workers.StopAndWait(waitCtx)
	l.conn.Close()
}

func (l *TriggerListener) handle(ctx context.Context, msg *nats.Msg) {
	req, err := decodeTriggerRequest(msg.Data)
	if err != nil {
		observability.WarnContext(ctx, "malformed trigger request", logfields.Error(err))
		l.respond(ctx, msg, TriggerReply{Status: runner.StatusFailed, Error: err.Error()})
		return
	}

	observability.InfoContext(ctx, "upstream trigger received",
		logfields.Trigger(string(pipeline.TriggerUpstream)))

	reply := make(chan pipeline.Result, 1)
	if err := l.sink.Enqueue(pipeline.TriggerUpstream, req.Secrets, reply); err != nil {
		l.respond(ctx, msg, TriggerReply{Status: runner.StatusFailed, Error: err.Error()})
		return
	}

	// Wait for the result off the subscription callback so slow runs do not
	// stall later triggers.
	l.workers.Go(func() {
		select {
		case res := <-reply:
			l.respond(ctx, msg, summarize(res))
		case <-time.After(replyWait):
			l.respond(ctx, msg, TriggerReply{Status: runner.StatusRunning})
		case <-ctx.Done():
		}
	})
}

func (l *TriggerListener) respond(ctx context.Context, msg *nats.Msg, reply TriggerReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		observability.ErrorContext(ctx, "encoding trigger reply", logfields.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		observability.WarnContext(ctx, "sending trigger reply", logfields.Error(err))
	}
}

func decodeTriggerRequest(data []byte) (TriggerRequest, error) {
	var req TriggerRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.Wrap(err, errors.CategoryDaemon, errors.SeverityError, "decoding trigger request")
	}
	return req, nil
}

// summarize reduces a run result to its reply form. Outputs and credentials
// never cross the bus.
func summarize(res pipeline.Result) TriggerReply {
	reply := TriggerReply{RunID: res.RunID, Status: res.Status}
	if step, ok := res.Artifact.FailedStep(); ok {
		reply.FailedStep = step.Name
	} else if step, ok := res.Flow.FailedStep(); ok {
		reply.FailedStep = step.Name
	}
	return reply
}
