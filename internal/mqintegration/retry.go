package mqintegration

import (
	"errors"
	"fmt"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"

	"github.com/biometria-se/async-messaged/internal/message"
)

const maxRetryAttempts = 5

// backoffFor returns the quadratic backoff the retry policy uses
// between attempts: attempt^2 * 0.5 seconds.
func backoffFor(attempt int) time.Duration {
	return time.Duration(float64(attempt*attempt)*0.5*1000) * time.Millisecond
}

// withRetry runs op up to maxRetryAttempts times, sleeping the
// quadratic backoff between attempts whenever classify judges the
// error transient. A nil classify treats every error as transient.
func withRetry(op func(attempt int) error, classify func(err error) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if classify != nil {
			if classified := classify(err); classified != nil && !errors.Is(classified, message.ErrTransientBroker) {
				return classified
			}
		}

		if attempt < maxRetryAttempts {
			time.Sleep(backoffFor(attempt))
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetryAttempts, lastErr)
}

// mqReturnCode extracts the MQRC from a wrapped *ibmmq.MQReturn, if
// the error chain contains one.
func mqReturnCode(err error) (int32, bool) {
	var mqret *ibmmq.MQReturn
	if errors.As(err, &mqret) {
		return mqret.MQRC, true
	}
	return 0, false
}

// classifyPut implements the retry policy for PUT: a truncated message
// is never expected on a send, so any MQ error is treated as fatal
// except BACKED_OUT, which is retried, and a generic "not open"/
// operation-failed condition, which triggers a reconnect-and-retry.
func (i *Integration) classifyPut(err error) error {
	rc, ok := mqReturnCode(err)
	if !ok {
		return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}

	switch rc {
	case ibmmq.MQRC_RECONNECT_FAILED:
		return fmt.Errorf("%w: reconnect failed: %v", message.ErrFatalBroker, err)
	case ibmmq.MQRC_BACKED_OUT:
		return fmt.Errorf("%w: %v", message.ErrTransientBroker, err)
	case ibmmq.MQRC_NOT_OPEN, ibmmq.MQRC_CONNECTION_BROKEN:
		i.reconnect()
		return fmt.Errorf("%w: %v", message.ErrTransientBroker, err)
	default:
		return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}
}

// classifyGet implements the retry policy for GET as described in
// section 4.4: truncated messages with no explicit max_message_size
// are transient (a concurrent resize race), an explicit max_message_size
// overflow is boundary B1 and fails with the message/buffer size text,
// "no message available" while re-fetching a browsed message is
// transient, a plain GET timing out on an empty queue is boundary B2,
// BACKED_OUT is transient, RECONNECT_FAILED is fatal, NOT_OPEN and
// CONNECTION_BROKEN are a reconnect-and-retry, and any other reason
// code is fatal.
func (i *Integration) classifyGet(err error, maxMessageSize, actualLength int, refetchByID bool) error {
	rc, ok := mqReturnCode(err)
	if !ok {
		return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}

	switch rc {
	case ibmmq.MQRC_TRUNCATED_MSG_FAILED:
		if maxMessageSize > 0 {
			return fmt.Errorf("%w: message with size %d bytes does not fit in message buffer of %d bytes", message.ErrFatalBroker, actualLength, maxMessageSize)
		}
		return fmt.Errorf("%w: %v", message.ErrTransientBroker, err)
	case ibmmq.MQRC_NO_MSG_AVAILABLE:
		if refetchByID {
			return fmt.Errorf("%w: %v", message.ErrTransientBroker, err)
		}
		return fmt.Errorf("%w: timeout waiting for message", message.ErrFatalBroker)
	case ibmmq.MQRC_BACKED_OUT:
		return fmt.Errorf("%w: %v", message.ErrTransientBroker, err)
	case ibmmq.MQRC_RECONNECT_FAILED:
		return fmt.Errorf("%w: reconnect failed: %v", message.ErrFatalBroker, err)
	case ibmmq.MQRC_NOT_OPEN, ibmmq.MQRC_CONNECTION_BROKEN:
		i.reconnect()
		return fmt.Errorf("%w: %v", message.ErrTransientBroker, err)
	default:
		return fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}
}

// reconnect tears down and re-establishes the queue manager connection
// using the last-known connection parameters, matching the "disconnect,
// reconnect (same context), retry" rule for generic open/operation
// failures.
func (i *Integration) reconnect() {
	if i.qmgr == nil {
		return
	}
	_ = i.qmgr.Disc()
	qmgr, err := ibmmq.Connx(i.queueManager, i.lastCNO)
	if err != nil {
		i.logger.Warn("reconnect failed", "error", err)
		i.qmgr = nil
		return
	}
	i.qmgr = &qmgr
}
