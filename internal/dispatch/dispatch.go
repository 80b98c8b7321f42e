// Package dispatch runs evaluations in the background, either in-process or
// through a durable RabbitMQ queue.
package dispatch

import (
	"context"

	"github.com/cockroachdb/errors"
)

const (
	DriverInProcess = "inprocess"
	DriverAMQP      = "amqp"
)

// ErrClosed is returned by Dispatch after Shutdown has started.
var ErrClosed = errors.New("dispatcher is shut down")

// Handler processes one application. It is called at least once per Dispatch.
type Handler func(ctx context.Context, applicationID int64) error

// Dispatcher schedules handler runs and drains them on Shutdown.
type Dispatcher interface {
	Dispatch(ctx context.Context, applicationID int64) error
	Shutdown(ctx context.Context) error
}
