package ioloop_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qb-go/qbcore/ioloop"
	"github.com/qb-go/qbcore/ioloop/lineproto"
)

func TestTCPServerAcceptsAndFramesLines(t *testing.T) {
	reactor := ioloop.NewReactor(nil)
	received := make(chan string, 4)

	srv, err := ioloop.Listen("127.0.0.1:0", func(nc net.Conn) {
		proto := &lineproto.Protocol{OnLine: func(line []byte) {
			received <- string(line)
		}}
		ioloop.NewConn(nc, reactor, proto, nil)
	})
	require.NoError(t, err)
	defer srv.Close()

	client, err := ioloop.Dial(srv.Addr().String(), reactor, &lineproto.Protocol{}, nil)
	require.NoError(t, err)
	defer client.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				reactor.Step()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	_, err = client.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	got := make(map[string]bool)
	for len(got) < 2 {
		select {
		case line := <-received:
			got[line] = true
		case <-deadline:
			t.Fatalf("timed out, got so far: %v", got)
		}
	}

	require.True(t, got["hello"])
	require.True(t, got["world"])
}

// TestConnQueueDeliversInOrder pushes three lines through a server-side
// connection's outbound pipe and checks the client sees them in queue order.
func TestConnQueueDeliversInOrder(t *testing.T) {
	reactor := ioloop.NewReactor(nil)
	received := make(chan string, 4)

	srv, err := ioloop.Listen("127.0.0.1:0", func(nc net.Conn) {
		conn := ioloop.NewConn(nc, reactor, &lineproto.Protocol{}, nil)
		conn.Queue([]byte("one\n"))
		conn.Queue([]byte("two\n"))
		conn.Queue([]byte("three\n"))
	})
	require.NoError(t, err)
	defer srv.Close()

	clientProto := &lineproto.Protocol{OnLine: func(line []byte) {
		received <- string(line)
	}}
	client, err := ioloop.Dial(srv.Addr().String(), reactor, clientProto, nil)
	require.NoError(t, err)
	defer client.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				reactor.Step()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	var lines []string
	deadline := time.After(2 * time.Second)
	for len(lines) < 3 {
		select {
		case line := <-received:
			lines = append(lines, line)
		case <-deadline:
			t.Fatalf("timed out, got so far: %v", lines)
		}
	}

	require.Equal(t, []string{"one", "two", "three"}, lines)
}
