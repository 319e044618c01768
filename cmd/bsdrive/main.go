// Command bsdrive copies a drive from its peers into a local directory,
// or publishes a local directory as a new drive and seeds it.
//
// Usage:
//
//	bsdrive [flags] [copy] [-announce] [-delete] KEY [OUTPUT]
//	bsdrive [flags] create INPUT [STORAGE]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/lifecycle"
	"github.com/bobg/bsdrive/progress"
	"github.com/bobg/bsdrive/session"
	"github.com/bobg/bsdrive/swarm"

	_ "github.com/bobg/bsdrive/store/file"
	_ "github.com/bobg/bsdrive/store/gcs"
	_ "github.com/bobg/bsdrive/store/logging"
	_ "github.com/bobg/bsdrive/store/lru"
	_ "github.com/bobg/bsdrive/store/mem"
	_ "github.com/bobg/bsdrive/store/pg"
	_ "github.com/bobg/bsdrive/store/sqlite3"
)

const exitUsage = 2

type maincmd struct {
	config   string
	listen   string
	peers    string
	dht      bool
	interval time.Duration
	cache    int
	verbose  bool
	quiet    bool

	// code is the exit status of a subcommand that ran to the end of its session.
	code *int
}

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

// newDHT starts a DHT node, binding a UDP socket.
var newDHT = func() (swarm.Discovery, error) { return swarm.NewDHT(nil) }

func main() {
	var c maincmd
	flag.StringVar(&c.config, "config", "", "path to JSON store config file (default: file store in scratch dir)")
	flag.StringVar(&c.listen, "listen", ":0", "address to serve peers on")
	flag.StringVar(&c.peers, "peers", "", "comma-separated addresses of known peers")
	flag.BoolVar(&c.dht, "dht", false, "find peers through the mainline DHT")
	flag.DurationVar(&c.interval, "interval", 200*time.Millisecond, "progress update interval")
	flag.IntVar(&c.cache, "cache", 0, "number of blobs to cache in memory (0 disables)")
	flag.BoolVar(&c.verbose, "v", false, "log store operations")
	flag.BoolVar(&c.quiet, "quiet", false, "do not show progress")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 || (args[0] != "copy" && args[0] != "create") {
		args = append([]string{"copy"}, args...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := subcmd.Run(ctx, &c, args)
	stop()
	os.Exit(exitCode(c.code, err))
}

func exitCode(code *int, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "bsdrive: %s\n", err)
	}
	if code != nil {
		return *code
	}
	if err == nil {
		return lifecycle.ExitOK
	}

	var (
		verr *bsdrive.ValidationError
		uerr usageError
	)
	if errors.As(err, &verr) || errors.As(err, &uerr) || errors.Is(err, flag.ErrHelp) {
		return exitUsage
	}
	return lifecycle.ExitFailure
}

func (c *maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"copy":   c.copy,
		"create": c.create,
	}
}

func (c *maincmd) sessionConfig(mode session.Mode) (session.Config, error) {
	conf := session.Config{
		Mode:      mode,
		CacheSize: c.cache,
		Verbose:   c.verbose,
		Network:   swarm.Config{ListenAddr: c.listen},
	}

	if c.config != "" {
		sconf, err := storeConfig(c.config)
		if err != nil {
			return conf, err
		}
		conf.StoreConfig = sconf
	}

	var discs swarm.Multi
	if c.peers != "" {
		discs = append(discs, swarm.Static(strings.Split(c.peers, ",")))
	}
	if c.dht {
		d, err := newDHT()
		if err != nil {
			return conf, err
		}
		discs = append(discs, d)
	}
	switch len(discs) {
	case 0:
		log.Print("no discovery configured (use -peers or -dht); waiting for peers to connect")
	case 1:
		conf.Network.Discovery = discs[0]
	default:
		conf.Network.Discovery = discs
	}

	return conf, nil
}

func (c *maincmd) indicator(desc string) progress.Indicator {
	if c.quiet {
		return progress.Nop{}
	}
	return progress.NewBar(os.Stderr, desc)
}

// bootstrap is session.Bootstrap,
// releasing the discovery service if the session does not take it over.
func bootstrap(ctx context.Context, conf session.Config) (*session.Session, error) {
	s, err := session.Bootstrap(ctx, conf)
	if err != nil && conf.Network.Discovery != nil {
		conf.Network.Discovery.Close()
	}
	return s, err
}

func (c *maincmd) run(ctx context.Context, s *session.Session, opts session.RunOptions) error {
	opts.Interval = c.interval
	code, err := s.Run(ctx, opts)
	c.code = &code
	return err
}
