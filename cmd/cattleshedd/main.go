// Command cattleshedd is the compile-and-run dispatcher daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wandbox-go/cattleshed/internal/acceptor"
	"github.com/wandbox-go/cattleshed/internal/admin"
	"github.com/wandbox-go/cattleshed/internal/catalog"
	"github.com/wandbox-go/cattleshed/internal/config"
	"github.com/wandbox-go/cattleshed/internal/launcher"
	"github.com/wandbox-go/cattleshed/internal/logger"
	"github.com/wandbox-go/cattleshed/internal/rlimit"
	"github.com/wandbox-go/cattleshed/internal/session"
)

func main() {
	// Dispatch the hidden reexec subcommand before cobra's flag parsing
	// gets a chance to touch os.Args — rlimitexec's argv is the real
	// compile/run command, not a cattleshedd flag set.
	if len(os.Args) >= 2 && os.Args[1] == launcher.RlimitExecName {
		runRlimitExec(os.Args[2:])
		return
	}

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "cattleshedd",
		Short: "compile-and-run dispatcher",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to cattleshedd.yaml")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(reloadCmd())
	root.AddCommand(probeCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the dispatcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			reg, err := catalog.NewWatcher(cfg.CatalogPath, cfg.DefaultLimits, log)
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}

			stats := &admin.Stats{}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := &acceptor.Acceptor{
				Addr:     cfg.ListenAddr,
				Registry: reg,
				SessionCfg: session.Config{
					PtracerPath:  cfg.PtracerPath,
					ForwardStdin: cfg.ForwardStdin,
					BaseDir:      cfg.BaseDir,
					Stats:        stats,
				},
				Log: log,
			}

			errCh := make(chan error, 2)
			go func() { errCh <- a.ListenAndServe(ctx) }()
			running := 1
			if cfg.AdminSocket != "" {
				adminSrv := admin.New(cfg.AdminSocket, reg, stats)
				go func() { errCh <- adminSrv.ListenAndServe(ctx) }()
				running++
			}

			select {
			case <-ctx.Done():
				for i := 0; i < running; i++ {
					<-errCh
				}
				return nil
			case err := <-errCh:
				stop()
				return err
			}
		},
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "send SIGHUP to a running cattleshedd to reload its catalog and relisten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			return proc.Signal(syscall.SIGHUP)
		},
	}
}

func probeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "load the configured catalog and print each displayable compiler's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			reg, err := catalog.Load(cfg.CatalogPath, cfg.DefaultLimits)
			if err != nil {
				return err
			}
			for _, trait := range reg.Displayable() {
				if len(trait.VersionCommand) == 0 {
					continue
				}
				version, ok := launcher.CollectOutput(context.Background(), "", trait.VersionCommand)
				if !ok {
					continue
				}
				fmt.Printf("%s\t%s\t%s\t%s\n", trait.Name, trait.Language, trait.DisplayName, version)
			}
			return nil
		},
	}
}

func parsePID(s string) (int, error) {
	var pid int
	if _, err := fmt.Sscanf(s, "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid pid %q: %w", s, err)
	}
	return pid, nil
}

// runRlimitExec applies the resource limits encoded in the environment
// (see internal/rlimit.Env) and then execs argv in place, so the
// compiled program or compiler runs with those limits already active.
func runRlimitExec(argv []string) {
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "rlimitexec: missing argv")
		os.Exit(1)
	}
	limits := rlimit.FromEnviron(os.Environ())
	if err := rlimit.Apply(limits); err != nil {
		fmt.Fprintln(os.Stderr, "rlimitexec:", err)
		os.Exit(1)
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "rlimitexec:", err)
		os.Exit(1)
	}
	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "rlimitexec exec failed:", err)
		os.Exit(1)
	}
}
