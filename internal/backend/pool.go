package backend

import (
	"net"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool multiplexes every connection task over a fixed number of processors.
// A task suspends only while its Read or Write on the connection is
// waiting; the runtime network poller resumes it once the socket is ready,
// so a slow client never holds a processor.
//
// The processor count is process-wide (GOMAXPROCS). It is set when the pool
// is created and restored by Close.
type Pool struct {
	tracker
	workers   int
	prevProcs int
	closeOnce sync.Once
}

var _ Backend = &Pool{}

// NewPool creates a pool of the given number of processors, defaulting to
// the number of CPUs.
func NewPool(task Task, workers int, logger logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		tracker: tracker{task: task, log: logger},
		workers: workers,
	}
	p.prevProcs = runtime.GOMAXPROCS(workers)
	logger.WithFields(logrus.Fields{
		"workers":  workers,
		"previous": p.prevProcs,
	}).Debug("pool processors set")
	return p
}

func (p *Pool) Submit(conn net.Conn) {
	p.start()
	go p.run(conn)
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		runtime.GOMAXPROCS(p.prevProcs)
	})
	return nil
}

func (p *Pool) Name() string {
	return NamePool
}
