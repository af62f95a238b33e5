package mqintegration

import (
	"fmt"
	"time"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"

	"github.com/biometria-se/async-messaged/internal/message"
	"github.com/biometria-se/async-messaged/internal/transform"
)

const browsePollInterval = 500 * time.Millisecond

// selectByContent implements the content-based selector from section
// 4.5: browse the queue, transform and evaluate each message, and
// return the message-id of the first match without ever consuming a
// non-matching message.
func (i *Integration) selectByContent(queueName, expression, contentType string, messageWait float64) ([]byte, bool, error) {
	transformer, ok := i.transformers.Get(transform.ParseContentType(contentType))
	if !ok {
		return nil, false, fmt.Errorf("%w: no transformer registered for content type %q", message.ErrConfiguration, contentType)
	}

	selector, err := transformer.Compile(expression)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", message.ErrConfiguration, err)
	}

	var (
		matchedID []byte
		found     bool
	)

	deadline := messageWaitDeadline(messageWait)
	browseOptions := ibmmq.MQGMO_BROWSE_FIRST

	err = i.withQueue(queueName, ibmmq.MQOO_BROWSE|ibmmq.MQOO_FAIL_IF_QUIESCING, func(obj *ibmmq.MQObject) error {
		for {
			md := ibmmq.NewMQMD()
			gmo := ibmmq.NewMQGMO()
			gmo.Options = browseOptions | ibmmq.MQGMO_FAIL_IF_QUIESCING
			browseOptions = ibmmq.MQGMO_BROWSE_NEXT

			buffer := make([]byte, 4*1024*1024)
			n, getErr := obj.Get(md, gmo, buffer)
			if getErr != nil {
				rc, ok := mqReturnCode(getErr)
				if ok && rc == ibmmq.MQRC_NO_MSG_AVAILABLE {
					if messageWait <= 0 || time.Now().After(deadline) {
						return nil
					}
					time.Sleep(browsePollInterval)
					continue
				}
				if ok && rc == ibmmq.MQRC_TRUNCATED_MSG_FAILED {
					i.logger.Warn("truncated browse, retrying")
					time.Sleep(browsePollInterval)
					continue
				}
				return getErr
			}

			body := buffer[:n]
			if i.headerType == "rfh2" {
				if unwrapped, err := unwrapRFH2(body); err == nil {
					body = unwrapped
				}
			}

			value, err := transformer.Transform(body)
			if err != nil {
				i.logger.Warn("skipping message that failed to transform", "error", err)
				continue
			}

			matches, err := selector.Select(value)
			if err != nil {
				return fmt.Errorf("%w: %v", message.ErrConfiguration, err)
			}
			if len(matches) > 0 {
				matchedID = append([]byte(nil), md.MsgId...)
				found = true
				return nil
			}

			if messageWait <= 0 {
				continue
			}
			if time.Now().After(deadline) {
				return nil
			}
		}
	})
	if err != nil {
		return nil, false, err
	}

	return matchedID, found, nil
}
