package mqintegration

import (
	"fmt"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"

	"github.com/biometria-se/async-messaged/internal/arguments"
	"github.com/biometria-se/async-messaged/internal/message"
)

func (i *Integration) handlePut(req *message.Request) (*message.Response, error) {
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: PUT requires a payload", message.ErrConfiguration)
	}
	endpoint, _ := req.Context.String("endpoint")
	args, err := arguments.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if err := args.Validate([]string{"queue", "max_message_size"}, []string{"queue"}); err != nil {
		return nil, err
	}
	queueName, _ := args.Get("queue")
	maxMessageSize := 0
	if v, ok := args.Get("max_message_size"); ok {
		fmt.Sscanf(v, "%d", &maxMessageSize)
	}

	payload := []byte(*req.Payload)
	if i.headerType == "rfh2" {
		payload = wrapRFH2(payload)
	} else if i.headerType != "" {
		return nil, fmt.Errorf("%w: unrecognized header_type %q", message.ErrConfiguration, i.headerType)
	}

	err = withRetry(func(attempt int) error {
		return i.withQueue(queueName, ibmmq.MQOO_OUTPUT|ibmmq.MQOO_FAIL_IF_QUIESCING, func(obj *ibmmq.MQObject) error {
			md := ibmmq.NewMQMD()
			pmo := ibmmq.NewMQPMO()
			pmo.Options = ibmmq.MQPMO_SYNCPOINT | ibmmq.MQPMO_NEW_MSG_ID | ibmmq.MQPMO_FAIL_IF_QUIESCING

			if err := obj.Put(md, pmo, payload); err != nil {
				_ = i.qmgr.Back()
				return err
			}
			return i.qmgr.Cmt()
		})
	}, i.classifyPut)
	if err != nil {
		return nil, err
	}

	length := len(payload)
	return &message.Response{Success: true, ResponseLength: &length}, nil
}

func (i *Integration) handleGet(req *message.Request) (*message.Response, error) {
	if req.Payload != nil {
		return nil, fmt.Errorf("%w: GET must not carry a payload", message.ErrConfiguration)
	}
	endpoint, _ := req.Context.String("endpoint")
	args, err := arguments.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if err := args.Validate([]string{"queue", "expression", "max_message_size"}, []string{"queue"}); err != nil {
		return nil, err
	}
	queueName, _ := args.Get("queue")
	maxMessageSize := 0
	if v, ok := args.Get("max_message_size"); ok {
		fmt.Sscanf(v, "%d", &maxMessageSize)
	}
	messageWait := i.messageWait
	if v := req.Context.Int("message_wait", -1); v >= 0 {
		messageWait = float64(v)
	}

	if expression, ok := args.Get("expression"); ok {
		contentType, _ := req.Context.String("content_type")
		msgID, found, err := i.selectByContent(queueName, expression, contentType, messageWait)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: no matching message found", message.ErrTransientBroker)
		}
		return i.fetchByID(queueName, msgID, maxMessageSize)
	}

	return i.fetchNext(queueName, messageWait, maxMessageSize)
}

func (i *Integration) fetchNext(queueName string, messageWait float64, maxMessageSize int) (*message.Response, error) {
	var body []byte
	var actualLength int

	err := withRetry(func(attempt int) error {
		return i.withQueue(queueName, ibmmq.MQOO_INPUT_SHARED|ibmmq.MQOO_FAIL_IF_QUIESCING, func(obj *ibmmq.MQObject) error {
			for {
				md := ibmmq.NewMQMD()
				gmo := ibmmq.NewMQGMO()
				gmo.Options = ibmmq.MQGMO_WAIT | ibmmq.MQGMO_FAIL_IF_QUIESCING | ibmmq.MQGMO_SYNCPOINT
				if messageWait > 0 {
					gmo.WaitInterval = int32(messageWait * 1000)
				} else {
					gmo.Options = ibmmq.MQGMO_FAIL_IF_QUIESCING | ibmmq.MQGMO_SYNCPOINT
				}

				bufferSize := maxMessageSize
				if bufferSize == 0 {
					bufferSize = 4 * 1024 * 1024
				}
				buffer := make([]byte, bufferSize)

				n, err := obj.Get(md, gmo, buffer)
				if err != nil {
					// MQI reports the message's full original length in
					// the datalength out-parameter even on truncation,
					// which boundary B1's failure text needs.
					actualLength = n
					_ = i.qmgr.Back()
					return err
				}
				if n == 0 {
					// zero-byte message: consume and retry, it is
					// never put back per section 4.4.
					if err := i.qmgr.Cmt(); err != nil {
						return err
					}
					continue
				}

				body = buffer[:n]
				return i.qmgr.Cmt()
			}
		})
	}, func(err error) error { return i.classifyGet(err, maxMessageSize, actualLength, false) })
	if err != nil {
		return nil, err
	}

	if i.headerType == "rfh2" {
		unwrapped, err := unwrapRFH2(body)
		if err == nil {
			body = unwrapped
		}
	}

	text, err := message.EncodeBytesPayload(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}

	length := len(body)
	return &message.Response{Success: true, Payload: &text, ResponseLength: &length}, nil
}

func (i *Integration) fetchByID(queueName string, msgID []byte, maxMessageSize int) (*message.Response, error) {
	var body []byte
	var actualLength int

	err := withRetry(func(attempt int) error {
		return i.withQueue(queueName, ibmmq.MQOO_INPUT_SHARED|ibmmq.MQOO_FAIL_IF_QUIESCING, func(obj *ibmmq.MQObject) error {
			md := ibmmq.NewMQMD()
			md.MsgId = msgID
			gmo := ibmmq.NewMQGMO()
			gmo.Options = ibmmq.MQGMO_WAIT | ibmmq.MQGMO_FAIL_IF_QUIESCING | ibmmq.MQGMO_SYNCPOINT
			gmo.MatchOptions = ibmmq.MQMO_MATCH_MSG_ID
			gmo.WaitInterval = 5000

			bufferSize := maxMessageSize
			if bufferSize == 0 {
				bufferSize = 4 * 1024 * 1024
			}
			buffer := make([]byte, bufferSize)

			n, err := obj.Get(md, gmo, buffer)
			if err != nil {
				actualLength = n
				_ = i.qmgr.Back()
				return err
			}
			body = buffer[:n]
			return i.qmgr.Cmt()
		})
	}, func(err error) error { return i.classifyGet(err, maxMessageSize, actualLength, true) })
	if err != nil {
		return nil, err
	}

	text, err := message.EncodeBytesPayload(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrFatalBroker, err)
	}

	length := len(body)
	return &message.Response{Success: true, Payload: &text, ResponseLength: &length}, nil
}

// messageWaitDeadline converts a message_wait seconds value into an
// absolute deadline, used by the browse loop's polling retry.
func messageWaitDeadline(messageWait float64) time.Time {
	return time.Now().Add(time.Duration(messageWait * float64(time.Second)))
}
