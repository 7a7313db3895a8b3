package daemon

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Response{Kind: ResponsePong}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	var got Response
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Kind != want.Kind {
		t.Fatalf("expected %s, got %s", want.Kind, got.Kind)
	}
}

func TestServerPingPong(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "orchestrator.sock")
	srv := NewServer(Settings{SocketPath: sockPath}, func() Snapshot { return Snapshot{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Shutdown(context.Background())

	var conn net.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, Request{Kind: RequestPing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var resp Response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ReadFrame(conn, &resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Kind != ResponsePong {
		t.Fatalf("expected pong, got %s", resp.Kind)
	}
}

func TestServerStatusSubscriptionReceivesSnapshot(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "orchestrator.sock")
	srv := NewServer(
		Settings{SocketPath: sockPath, BroadcastInterval: 20 * time.Millisecond},
		func() Snapshot {
			return Snapshot{Stages: []StageSummary{{ID: "stage-a", Status: "executing"}}}
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Shutdown(context.Background())

	var conn net.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := WriteFrame(conn, Request{Kind: RequestSubscribeStatus}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var ok Response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ReadFrame(conn, &ok); err != nil || ok.Kind != ResponseOk {
		t.Fatalf("expected ok ack, got %+v err=%v", ok, err)
	}

	var update Response
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ReadFrame(conn, &update); err != nil {
		t.Fatalf("read status update: %v", err)
	}
	if update.Kind != ResponseStatusUpdate || update.Snapshot == nil || len(update.Snapshot.Stages) != 1 {
		t.Fatalf("unexpected status update: %+v", update)
	}
}

func TestIsRealIOErrorClassifiesTimeoutsAsNonFatal(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "orchestrator.sock")
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	client, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	client.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	buf := make([]byte, 4)
	_, readErr := client.Read(buf)
	if readErr == nil {
		t.Fatal("expected a timeout error")
	}
	if isRealIOError(readErr) {
		t.Fatalf("expected a timeout to be classified as non-fatal, got real I/O error: %v", readErr)
	}
}
