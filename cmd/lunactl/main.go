// Command lunactl prints the reconstructed state of one aggregate.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/0m3kk/lunafold/config"
	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/infra/postgres"
	"github.com/0m3kk/lunafold/infra/redis"
	"github.com/0m3kk/lunafold/infra/sqlite"
	"github.com/0m3kk/lunafold/marketplace"
	"github.com/0m3kk/lunafold/publishing"
)

type options struct {
	kind     string
	id       string
	snapshot bool
	secrets  bool
}

func parseArgs(fs *flag.FlagSet, args []string) (options, error) {
	var opts options
	fs.StringVar(&opts.kind, "kind", string(publishing.Kind), "aggregate kind: application or offer")
	fs.StringVar(&opts.id, "id", "", "aggregate id")
	fs.BoolVar(&opts.snapshot, "snapshot", false, "save a snapshot of the reconstructed state")
	fs.BoolVar(&opts.secrets, "secrets", false, "resolve offer step secrets from Redis")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.id == "" {
		return options{}, errors.New("-id is required")
	}
	switch eventsrc.AggregateKind(opts.kind) {
	case publishing.Kind, marketplace.Kind:
	default:
		return options{}, fmt.Errorf("unknown kind %q", opts.kind)
	}
	if opts.secrets && eventsrc.AggregateKind(opts.kind) != marketplace.Kind {
		return options{}, errors.New("-secrets only applies to offers")
	}
	return opts, nil
}

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain runs the command and returns its exit code, so deferred cleanup
// runs before the process exits.
func realMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lunactl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts, err := parseArgs(fs, args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeStore()

	if err := run(ctx, stdout, store, cfg, opts); err != nil {
		if kind := eventsrc.KindOf(err); kind != 0 {
			fmt.Fprintf(stderr, "%s: %v\n", kind, err)
		} else {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	return 0
}

type eventStore interface {
	eventsrc.EventStore
	eventsrc.SnapshotStore
}

func openStore(ctx context.Context, cfg config.Config) (eventStore, func(), error) {
	if cfg.Store == config.StoreSQLite {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	db, err := postgres.NewDB(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewEventStore(db, postgres.NewOutboxStore(db)), db.Close, nil
}

func run(ctx context.Context, out io.Writer, store eventStore, cfg config.Config, opts options) error {
	var reconstructorOpts []eventsrc.ReconstructorOption
	if opts.snapshot {
		reconstructorOpts = append(reconstructorOpts, eventsrc.WithSnapshotEvery(1))
	}

	var (
		body json.RawMessage
		seq  int64
		err  error
	)
	switch eventsrc.AggregateKind(opts.kind) {
	case publishing.Kind:
		body, seq, err = publishing.NewReconstructor(store, store, reconstructorOpts...).ReconstructJSONAt(ctx, opts.id)
	case marketplace.Kind:
		r := marketplace.NewReconstructor(store, store, reconstructorOpts...)
		if opts.secrets {
			return printOfferSecrets(ctx, out, r, cfg, opts.id)
		}
		body, seq, err = r.ReconstructJSONAt(ctx, opts.id)
	}
	if err != nil {
		return err
	}
	if body == nil {
		return fmt.Errorf("%s %q not found (last sequence %d)", opts.kind, opts.id, seq)
	}
	return writeDump(out, opts.kind, opts.id, seq, body)
}

func writeDump(out io.Writer, kind, id string, seq int64, body json.RawMessage) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Kind       string          `json:"kind"`
		ID         string          `json:"id"`
		SequenceID int64           `json:"sequence_id"`
		State      json.RawMessage `json:"state"`
	}{kind, id, seq, body})
}

func printOfferSecrets(
	ctx context.Context,
	out io.Writer,
	r *eventsrc.Reconstructor[marketplace.Offer],
	cfg config.Config,
	id string,
) error {
	offer, err := r.Reconstruct(ctx, id)
	if err != nil {
		return err
	}
	if offer == nil {
		return fmt.Errorf("offer %q not found", id)
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer client.Close()

	resolved, err := marketplace.ResolveStepSecrets(ctx, offer, redis.NewSecretStore(client))
	if err != nil {
		return err
	}
	// Values stay masked; the dump only shows which secrets resolved.
	names := make(map[string]string, len(resolved))
	for name := range resolved {
		names[name] = "***"
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(names)
}
