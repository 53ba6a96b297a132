package audio

import (
	"bufio"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestIsConnRefusedDetectsECONNREFUSED(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	if !isConnRefused(err) {
		t.Fatal("expected isConnRefused to recognize ECONNREFUSED")
	}
}

func TestIsConnRefusedFalseForUnrelatedErrors(t *testing.T) {
	if isConnRefused(errors.New("boom")) {
		t.Fatal("expected isConnRefused false for unrelated error")
	}
}

func TestWriteHandshakeIncludesAuthAndMetadata(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan string)
	go func() {
		buf := make([]byte, 4096)
		n, _ := server.Read(buf)
		done <- string(buf[:n])
	}()

	meta := IceMetadata{Name: "Station", Description: "Desc", Genre: "Rock", Public: true}
	if err := writeHandshake(client, "/mount", "example.com", "hunter2", meta); err != nil {
		t.Fatalf("writeHandshake: %v", err)
	}

	got := <-done
	if !strings.Contains(got, "PUT /mount HTTP/1.1") {
		t.Errorf("missing request line: %q", got)
	}
	if !strings.Contains(got, "Host: example.com") {
		t.Errorf("missing Host header: %q", got)
	}
	wantAuth := "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("source:hunter2"))
	if !strings.Contains(got, wantAuth) {
		t.Errorf("missing Authorization header: %q", got)
	}
	if !strings.Contains(got, "Ice-Name: Station") {
		t.Errorf("missing Ice-Name header: %q", got)
	}
	if !strings.Contains(got, "Expect: 100-continue") {
		t.Errorf("missing Expect header: %q", got)
	}
}

func TestReadContinueRecognizes100(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		w := bufio.NewWriter(server)
		w.WriteString("HTTP/1.1 100 Continue\r\n\r\n")
		w.Flush()
	}()

	ok, err := readContinue(client)
	if err != nil {
		t.Fatalf("readContinue: %v", err)
	}
	if !ok {
		t.Fatal("expected readContinue to report true for 100 Continue")
	}
}

func TestReadContinueRejectsNon100(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		w := bufio.NewWriter(server)
		w.WriteString("HTTP/1.1 403 Forbidden\r\n\r\n")
		w.Flush()
	}()

	ok, err := readContinue(client)
	if err != nil {
		t.Fatalf("readContinue: %v", err)
	}
	if ok {
		t.Fatal("expected readContinue to report false for non-100 status")
	}
}

func TestIcecastEnqueueWritesRawBytesWhenNotChunked(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ic := &Icecast{conn: client}

	done := make(chan []byte)
	go func() {
		buf := make([]byte, 16)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	ic.enqueue(nil, []byte("hello"))

	select {
	case got := <-done:
		if string(got) != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestIcecastEnqueueWritesChunkedFramingWhenEnabled(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ic := &Icecast{conn: client, chunked: true}

	done := make(chan []byte)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	ic.enqueue(nil, []byte("ab"))

	select {
	case got := <-done:
		want := "2\r\nab"
		if !strings.HasPrefix(string(got), want) {
			t.Fatalf("got %q, want prefix %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestIcecastEnqueueNoopWithoutConnection(t *testing.T) {
	ic := &Icecast{}
	// Must not panic when no socket is connected.
	ic.enqueue(nil, []byte("data"))
}

func TestIcecastSetChunkedTogglesFlag(t *testing.T) {
	ic := &Icecast{}
	ic.SetChunked(true)
	ic.mu.Lock()
	got := ic.chunked
	ic.mu.Unlock()
	if !got {
		t.Fatal("expected chunked flag set to true")
	}
}
