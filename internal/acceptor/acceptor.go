// Package acceptor owns the TCP listening socket and spawns one
// internal/session per accepted connection.
package acceptor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudflare/tableflip"

	"github.com/wandbox-go/cattleshed/internal/compiler"
	"github.com/wandbox-go/cattleshed/internal/session"
	"github.com/wandbox-go/cattleshed/internal/workdir"
)

// Acceptor listens on a TCP address and runs one Session per connection.
// It upgrades its listening socket via tableflip so an operator can
// SIGHUP the process (e.g. after a catalog reload) without dropping
// connections already in flight.
type Acceptor struct {
	Addr       string
	Registry   compiler.Registry
	SessionCfg session.Config
	Log        *slog.Logger
}

// ListenAndServe blocks, accepting connections until ctx is canceled.
func (a *Acceptor) ListenAndServe(ctx context.Context) error {
	if err := workdir.EnsureBase(a.SessionCfg.BaseDir); err != nil {
		return fmt.Errorf("acceptor: ensure base workdir: %w", err)
	}

	upg, err := tableflip.New(tableflip.Options{})
	if err != nil {
		return fmt.Errorf("acceptor: tableflip: %w", err)
	}
	defer upg.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		for range sig {
			a.Log.Info("SIGHUP received, upgrading listener")
			if err := upg.Upgrade(); err != nil {
				a.Log.Warn("upgrade failed", "error", err)
			}
		}
	}()

	ln, err := upg.Listen("tcp", a.Addr)
	if err != nil {
		return fmt.Errorf("acceptor: listen %s: %w", a.Addr, err)
	}
	defer ln.Close()

	if err := upg.Ready(); err != nil {
		return fmt.Errorf("acceptor: tableflip ready: %w", err)
	}
	a.Log.Info("listening", "addr", a.Addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-upg.Exit():
				return nil
			default:
				return fmt.Errorf("acceptor: accept: %w", err)
			}
		}
		go a.handle(ctx, conn)
	}
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	s := session.New(conn, a.Registry, a.SessionCfg, a.Log)
	s.Run(ctx)
}
