package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanet-platform/softrouter/common/go/logging"
	"github.com/yanet-platform/softrouter/devices/afpacket"
	router "github.com/yanet-platform/softrouter/modules/router/controlplane"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "softrouter",
	Short: "Software IPv4 router with ARP resolution and RIPv2",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := run(cmd); err != nil {
			if errors.As(err, &Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the configuration and bootstrap tables, then print them",
	Run: func(rawCmd *cobra.Command, args []string) {
		if err := check(cmd); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file (required)")
	rootCmd.MarkPersistentFlagRequired("config")
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	dev, err := afpacket.NewDevice(cfg.Device, afpacket.WithLog(log.With(zap.String("device", "afpacket"))))
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	defer dev.Close()

	module, err := router.NewRouterModule(cfg.Router, dev, log)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return dev.Run(ctx, module.Router())
	})
	wg.Go(func() error {
		return module.Run(ctx)
	})
	wg.Go(func() error {
		err := WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}

func check(cmd Cmd) error {
	cfg, err := LoadConfig(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	routes, neighbours, err := router.Load(cfg.Router)
	if err != nil {
		return err
	}

	fmt.Printf("routes (%d):\n", len(routes))
	for _, route := range routes {
		fmt.Printf("  %s\n", route)
	}
	fmt.Printf("neighbours (%d):\n", len(neighbours))
	for _, entry := range neighbours {
		fmt.Printf("  %s\n", entry)
	}
	fmt.Printf("dynamic routing: %v\n", cfg.Router.RIPEnabled())

	return nil
}

type Interrupted struct {
	os.Signal
}

func (m Interrupted) Error() string {
	return m.String()
}

// WaitInterrupted blocks until either SIGINT or SIGTERM signal is received or
// the provided context is canceled.
func WaitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return Interrupted{Signal: v}
	case <-ctx.Done():
		return ctx.Err()
	}
}
