package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/homeservices/pkg/config"
	"github.com/spf13/cobra"
)

// Config is read from STOREFRONT_* variables and can be overridden by flags.
type Config struct {
	config.Logging
	APIURL  string        `envconfig:"API_URL" default:"http://localhost:8080"`
	Token   string        `envconfig:"TOKEN"`
	DataDir string        `envconfig:"DATA_DIR" default:".storefront"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

func main() {
	var cfg Config
	if err := config.Load("STOREFRONT", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Browse services, manage the cart and book a visit",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "gateway base URL")
	root.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "bearer token issued for the customer")
	root.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the local cart database")

	r := &runner{cfg: cfg}
	root.AddCommand(
		r.catalogCmd(),
		r.cartCmd(),
		r.addressCmd(),
		r.totalsCmd(),
		r.bookCmd(),
		r.bookingsCmd(),
	)
	return root
}
