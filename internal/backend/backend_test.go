package backend

import (
	"io"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBackends(t *testing.T, task Task) map[string]Backend {
	t.Helper()
	logger, _ := test.NewNullLogger()
	backends := map[string]Backend{}
	for _, name := range []string{NameThread, NamePool} {
		b, err := New(name, task, 2, logger)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
		t.Cleanup(func() { _ = b.Close() })
		backends[name] = b
	}
	return backends
}

func TestNewUnknown(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := New("fibers", func(net.Conn) {}, 0, logger)
	require.Error(t, err)
}

func TestSubmitIsAsynchronous(t *testing.T) {
	release := make(chan struct{})
	task := func(conn net.Conn) {
		defer conn.Close()
		<-release
		_, _ = conn.Write([]byte("done"))
	}

	for name, b := range newBackends(t, task) {
		t.Run(name, func(t *testing.T) {
			const n = 8
			clients := make([]net.Conn, n)
			for i := range clients {
				server, client := net.Pipe()
				clients[i] = client
				// Every task blocks, yet Submit keeps returning.
				b.Submit(server)
			}
			assert.Eventually(t, func() bool { return b.Active() == n }, time.Second, time.Millisecond)

			for range n {
				release <- struct{}{}
			}

			var wg sync.WaitGroup
			for _, c := range clients {
				wg.Add(1)
				go func(c net.Conn) {
					defer wg.Done()
					defer c.Close()
					got, err := io.ReadAll(c)
					assert.NoError(t, err)
					assert.Equal(t, "done", string(got))
				}(c)
			}
			wg.Wait()
			b.Wait()
			assert.Zero(t, b.Active())
		})
	}
}

func TestTaskPanicIsIsolated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var served sync.WaitGroup
	task := func(conn net.Conn) {
		defer served.Done()
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
		if buf[0] == 'p' {
			panic("boom")
		}
		_, _ = conn.Write([]byte("ok"))
		_ = conn.Close()
	}
	b := NewThreadPerConn(task, logger)

	bad, badClient := net.Pipe()
	good, goodClient := net.Pipe()
	served.Add(2)
	b.Submit(bad)
	b.Submit(good)

	_, err := badClient.Write([]byte("p"))
	require.NoError(t, err)
	got, _ := io.ReadAll(badClient)
	assert.Empty(t, got)

	_, err = goodClient.Write([]byte("g"))
	require.NoError(t, err)
	got, err = io.ReadAll(goodClient)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))

	served.Wait()
	b.Wait()
	_ = badClient.Close()
	_ = goodClient.Close()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "boom", entry.Data["panic"])
}

func TestPoolProcessors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	before := runtime.GOMAXPROCS(0)

	p := NewPool(func(conn net.Conn) { _ = conn.Close() }, 3, logger)
	assert.Equal(t, 3, p.Workers())
	assert.Equal(t, 3, runtime.GOMAXPROCS(0))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, before, runtime.GOMAXPROCS(0))

	p = NewPool(func(conn net.Conn) { _ = conn.Close() }, 0, logger)
	assert.Equal(t, runtime.NumCPU(), p.Workers())
	require.NoError(t, p.Close())
}
