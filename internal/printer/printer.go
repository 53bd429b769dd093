package printer

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Printer sends a finished ESC/POS stream to hardware.
type Printer interface {
	Print(ctx context.Context, data []byte) error
	Enabled() bool
}

// NetworkPrinter talks raw TCP, usually port 9100, and dials once per job.
type NetworkPrinter struct {
	address      string
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

func NewNetworkPrinter(address string) *NetworkPrinter {
	return &NetworkPrinter{
		address:      address,
		dialTimeout:  3 * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

func (p *NetworkPrinter) Print(ctx context.Context, data []byte) error {
	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("printer: connect %s: %w", p.address, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("printer: write %s: %w", p.address, err)
	}
	return nil
}

func (p *NetworkPrinter) Enabled() bool { return true }

type NullPrinter struct{}

func (NullPrinter) Print(_ context.Context, _ []byte) error { return nil }

func (NullPrinter) Enabled() bool { return false }

// New returns a network printer for address, or a NullPrinter when empty.
func New(address string) Printer {
	if address == "" {
		return NullPrinter{}
	}
	return NewNetworkPrinter(address)
}
