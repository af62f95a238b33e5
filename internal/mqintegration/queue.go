package mqintegration

import (
	"fmt"

	"github.com/ibm-messaging/mq-golang/v5/ibmmq"
)

// withQueue opens name with openOptions, runs fn, and closes the queue
// handle on every exit path including a panic inside fn, matching the
// queue_context scoping invariant in section 3.
func (i *Integration) withQueue(name string, openOptions int32, fn func(obj *ibmmq.MQObject) error) (err error) {
	if i.qmgr == nil {
		return fmt.Errorf("not connected to a queue manager")
	}

	mqod := ibmmq.NewMQOD()
	mqod.ObjectType = ibmmq.MQOT_Q
	mqod.ObjectName = name

	obj, openErr := i.qmgr.Open(mqod, openOptions)
	if openErr != nil {
		return fmt.Errorf("opening queue %q: %w", name, openErr)
	}

	defer func() {
		if closeErr := obj.Close(0); closeErr != nil && err == nil {
			err = fmt.Errorf("closing queue %q: %w", name, closeErr)
		}
	}()

	return fn(&obj)
}
