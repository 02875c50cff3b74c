package backend

import (
	"net"
	"runtime"

	"github.com/sirupsen/logrus"
)

// ThreadPerConn gives every connection a dedicated OS thread for the whole
// life of its task. There is no cap on the number of live threads.
type ThreadPerConn struct {
	tracker
}

var _ Backend = &ThreadPerConn{}

func NewThreadPerConn(task Task, logger logrus.FieldLogger) *ThreadPerConn {
	return &ThreadPerConn{tracker: tracker{task: task, log: logger}}
}

func (b *ThreadPerConn) Submit(conn net.Conn) {
	b.start()
	go func() {
		// Never unlocked: the runtime terminates the thread together with
		// the goroutine, so no other goroutine ever runs on it.
		runtime.LockOSThread()
		b.run(conn)
	}()
}

func (b *ThreadPerConn) Close() error {
	return nil
}

func (b *ThreadPerConn) Name() string {
	return NameThread
}
