package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/cyberinferno/konnect/events"
)

// printer writes every event as one line.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) OnConnected(peer events.Peer) {
	p.printf("[%d] connected %s\n", peer.ID(), peer.RemoteAddr())
}

func (p *printer) OnDisconnected(peer events.Peer) {
	p.printf("[%d] disconnected %s\n", peer.ID(), peer.RemoteAddr())
}

func (p *printer) OnDataReceived(peer events.Peer, data any) {
	if b, ok := data.([]byte); ok {
		p.printf("[%d] %s\n", peer.ID(), b)
		return
	}

	p.printf("[%d] %v\n", peer.ID(), data)
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}
