package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive/session"
)

func (c *maincmd) create(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageError{msg: errors.Wrap(err, "parsing args").Error()}
	}

	args = fs.Args()
	if len(args) < 1 || len(args) > 2 {
		return usageError{msg: "usage: bsdrive create INPUT [STORAGE]"}
	}
	input := args[0]
	if info, err := os.Stat(input); err != nil || !info.IsDir() {
		return usageError{msg: fmt.Sprintf("%s is not a directory", input)}
	}

	conf, err := c.sessionConfig(session.ModeCreate)
	if err != nil {
		return err
	}
	if len(args) == 2 {
		conf.StoragePath = args[1]
	}

	s, err := bootstrap(ctx, conf)
	if err != nil {
		return err
	}

	fmt.Println(s.Drive.Key())
	log.Printf("Serving on %s; interrupt to stop seeding", s.Network.Addr())

	return c.run(ctx, s, session.RunOptions{
		Dir:       input,
		Join:      session.DefaultJoinOptions(session.ModeCreate),
		Indicator: c.indicator("ingesting"),
	})
}
