package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/bobg/bsdrive/drive"
	"github.com/bobg/bsdrive/session"
)

func (c *maincmd) copy(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		announce = fs.Bool("announce", false, "also advertise this node as a source for the drive")
		del      = fs.Bool("delete", false, "remove files in the output that are not in the drive")
	)
	if err := fs.Parse(args); err != nil {
		return usageError{msg: errors.Wrap(err, "parsing args").Error()}
	}

	args = fs.Args()
	if len(args) < 1 || len(args) > 2 {
		return usageError{msg: "usage: bsdrive [copy] [-announce] [-delete] KEY [OUTPUT]"}
	}
	output := "."
	if len(args) == 2 {
		output = args[1]
	}

	// Reject a bad key before discovery opens any sockets.
	if _, err := drive.ParseKey(args[0]); err != nil {
		return err
	}

	conf, err := c.sessionConfig(session.ModeCopy)
	if err != nil {
		return err
	}
	conf.Key = args[0]

	s, err := bootstrap(ctx, conf)
	if err != nil {
		return err
	}

	jopts := session.DefaultJoinOptions(session.ModeCopy)
	jopts.Announce = *announce

	return c.run(ctx, s, session.RunOptions{
		Dir:       output,
		Join:      jopts,
		Delete:    *del,
		Indicator: c.indicator("copying"),
	})
}
