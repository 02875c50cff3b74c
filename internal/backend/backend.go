// Package backend decides how accepted connections are executed. Every
// backend runs each connection's task to completion independently of the
// accept loop and of every other connection.
package backend

import (
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

const (
	NameThread = "thread"
	NamePool   = "pool"
)

// Task runs the whole request pipeline for one connection. It owns conn and
// must close it.
type Task func(conn net.Conn)

type Backend interface {
	// Submit starts running task on conn and returns immediately.
	Submit(conn net.Conn)
	// Active reports how many tasks are still running.
	Active() int64
	// Wait blocks until every submitted task has finished.
	Wait()
	Close() error
	Name() string
}

// New returns the backend registered under name.
func New(name string, task Task, workers int, logger logrus.FieldLogger) (Backend, error) {
	switch name {
	case NameThread:
		return NewThreadPerConn(task, logger), nil
	case NamePool:
		return NewPool(task, workers, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q, must be one of %q or %q", name, NameThread, NamePool)
	}
}

// tracker counts live tasks and isolates their panics.
type tracker struct {
	task   Task
	log    logrus.FieldLogger
	wg     sync.WaitGroup
	active atomic.Int64
}

func (t *tracker) start() {
	t.wg.Add(1)
	t.active.Add(1)
}

func (t *tracker) run(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			_ = conn.Close()
			t.log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("connection task panicked")
		}
		t.active.Add(-1)
		t.wg.Done()
	}()
	t.task(conn)
}

func (t *tracker) Active() int64 {
	return t.active.Load()
}

func (t *tracker) Wait() {
	t.wg.Wait()
}
