package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"smartqa-backend/internal/pipeline"
	"smartqa-backend/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrInvalidJob indicates a decoded message missing per-stage arguments.
type ErrInvalidJob struct {
	Meta      MessageMeta
	RequestID string
	Err       error
}

func (e ErrInvalidJob) Error() string {
	if e.Err == nil {
		return "invalid job"
	}
	return "invalid job: " + e.Err.Error()
}

func (e ErrInvalidJob) Unwrap() error { return e.Err }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	Msg queue.Message
	Err error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process job"
	}
	return "process " + string(e.Msg.Stage) + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return msg, meta, ErrInvalidJob{Meta: meta, RequestID: msg.RequestID, Err: err}
	}
	return msg, meta, nil
}

// Handler runs one decoded stage job.
type Handler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// HandleMessage runs a parsed message through h.
func HandleMessage(ctx context.Context, h Handler, msg queue.Message) error {
	if h == nil {
		return errors.New("stage handler not configured")
	}
	if err := h.Handle(ctx, msg); err != nil {
		return ErrProcess{Msg: msg, Err: err}
	}
	return nil
}

// Decision tells the poll loop what to do with a delivery.
type Decision struct {
	Delete    bool
	Exhausted bool
	Reason    string
}

// Decide maps a handling outcome to a queue action. Successful and
// permanently failed jobs are deleted; transient failures stay for
// redelivery until receiveCount reaches maxReceives.
func Decide(err error, receiveCount, maxReceives int) Decision {
	switch {
	case err == nil:
		return Decision{Delete: true, Reason: "completed"}
	case isUnrecoverable(err):
		return Decision{Delete: true, Reason: "unrecoverable"}
	case maxReceives > 0 && receiveCount >= maxReceives:
		return Decision{Delete: true, Exhausted: true, Reason: "exhausted"}
	default:
		return Decision{Reason: "retry"}
	}
}

func isUnrecoverable(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	var invalid ErrInvalidJob
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &invalid) || pipeline.IsPermanent(err)
}
