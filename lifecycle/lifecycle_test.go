package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/bsdrive/mirror"
	"github.com/bobg/bsdrive/progress"
	"github.com/bobg/bsdrive/store/mem"
)

type calls struct {
	mu   sync.Mutex
	list []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, s)
}

func (c *calls) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.list...)
}

type closer struct {
	name  string
	calls *calls
	delay time.Duration
}

func (c closer) Close() error {
	time.Sleep(c.delay)
	c.calls.add(c.name)
	return nil
}

type closingStore struct {
	*mem.Store
	closer
}

type fakeProgress struct {
	calls *calls
}

func (p fakeProgress) Label(path string) { p.calls.add("label " + path) }

func (p fakeProgress) Refresh(context.Context) (progress.Sample, error) {
	p.calls.add("refresh")
	return progress.Sample{}, nil
}

func (p fakeProgress) Stop() { p.calls.add("stop") }

func newTestController(seed bool) (*Controller, *calls) {
	cl := new(calls)
	c := New(Config{
		Seed:        seed,
		Network:     closer{name: "network", calls: cl, delay: 10 * time.Millisecond},
		Store:       closingStore{Store: mem.New(), closer: closer{name: "store", calls: cl}},
		ScratchPath: "/scratch",
		Ephemeral:   true,
		RemoveAll: func(p string) error {
			cl.add("remove " + p)
			return nil
		},
	})
	return c, cl
}

func events(evs ...mirror.Event) <-chan mirror.Event {
	ch := make(chan mirror.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{Initializing, Joining, true},
		{Joining, Transferring, true},
		{Initializing, Transferring, true},
		{Transferring, Completed, true},
		{Transferring, Failed, true},
		{Completed, Failed, false},
		{Failed, Completed, false},
		{Transferring, Joining, false},
		{Completed, ShuttingDown, true},
		{Initializing, ShuttingDown, true},
		{ShuttingDown, ShuttingDown, false},
		{ShuttingDown, Closed, true},
		{Failed, Closed, false},
		{Closed, Initializing, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestShutdownOrder(t *testing.T) {
	c, cl := newTestController(false)
	if err := c.Shutdown(Outcome{DeleteScratch: true}); err != nil {
		t.Fatal(err)
	}
	want := []string{"network", "store", "remove /scratch"}
	if diff := cmp.Diff(want, cl.get()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if c.State() != Closed {
		t.Errorf("state %s", c.State())
	}
}

func TestShutdownOnce(t *testing.T) {
	c, cl := newTestController(false)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Shutdown(Outcome{Code: ExitFailure, DeleteScratch: true})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Handle(context.Background(), Interrupt{})
	}()
	wg.Wait()

	counts := make(map[string]int)
	for _, s := range cl.get() {
		counts[s]++
	}
	for _, s := range []string{"network", "store", "remove /scratch"} {
		if counts[s] != 1 {
			t.Errorf("%s happened %d times", s, counts[s])
		}
	}
}

func TestCopySuccess(t *testing.T) {
	c, cl := newTestController(false)
	prog := fakeProgress{calls: cl}
	c.conf.Progress = prog

	code := c.Run(context.Background(), events(
		mirror.Event{Type: mirror.EventPut, Path: "a"},
		mirror.Event{Type: mirror.EventEnd},
	))
	if code != ExitOK {
		t.Errorf("exit code %d", code)
	}
	want := []string{"label a", "refresh", "stop", "stop", "network", "store", "remove /scratch"}
	if diff := cmp.Diff(want, cl.get()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyFailure(t *testing.T) {
	c, cl := newTestController(false)
	boom := errors.New("boom")

	code := c.Run(context.Background(), events(
		mirror.Event{Type: mirror.EventPut, Path: "a"},
		mirror.Event{Type: mirror.EventError, Err: boom},
	))
	if code != ExitFailure {
		t.Errorf("exit code %d", code)
	}
	if !errors.Is(c.Err(), boom) {
		t.Errorf("got cause %v", c.Err())
	}
	want := []string{"network", "store"}
	if diff := cmp.Diff(want, cl.get()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInterruptTransfer(t *testing.T) {
	c, cl := newTestController(false)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan mirror.Event)
	go func() {
		ch <- mirror.Event{Type: mirror.EventPut, Path: "a"}
		cancel()
	}()

	done := make(chan int)
	go func() { done <- c.Run(ctx, ch) }()

	select {
	case code := <-done:
		if code != ExitInterrupted {
			t.Errorf("exit code %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	// A late error changes nothing.
	c.Handle(context.Background(), Error{Err: errors.New("late")})

	want := []string{"network", "store"}
	if diff := cmp.Diff(want, cl.get()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if c.ExitCode() != ExitInterrupted {
		t.Errorf("exit code changed to %d", c.ExitCode())
	}
}

func TestInterruptRacesMirrorError(t *testing.T) {
	// With ctx already canceled, Run may see either the interrupt
	// or the mirror's resulting error first.
	for i := 0; i < 50; i++ {
		c, _ := newTestController(false)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		code := c.Run(ctx, events(mirror.Event{Type: mirror.EventError, Err: errors.Join(errors.New("writing a"), context.Canceled)}))
		if code != ExitInterrupted {
			t.Fatalf("iteration %d: exit code %d, want %d", i, code, ExitInterrupted)
		}
		if err := c.Err(); err != nil {
			t.Fatalf("iteration %d: got error %v for an interrupt", i, err)
		}
	}
}

func TestInterruptJoining(t *testing.T) {
	c, cl := newTestController(false)
	if err := c.Enter(Joining); err != nil {
		t.Fatal(err)
	}
	c.Handle(context.Background(), Interrupt{})
	<-c.Done()
	if c.ExitCode() != ExitInterrupted {
		t.Errorf("exit code %d", c.ExitCode())
	}
	want := []string{"network", "store", "remove /scratch"}
	if diff := cmp.Diff(want, cl.get()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSeed(t *testing.T) {
	c, cl := newTestController(true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int)
	go func() {
		done <- c.Run(ctx, events(mirror.Event{Type: mirror.EventEnd}))
	}()

	deadline := time.Now().Add(5 * time.Second)
	for c.State() != Completed {
		if time.Now().After(deadline) {
			t.Fatal("transfer did not complete")
		}
		time.Sleep(time.Millisecond)
	}
	if got := cl.get(); len(got) != 0 {
		t.Fatalf("teardown began while seeding: %v", got)
	}

	cancel()
	if code := <-done; code != ExitOK {
		t.Errorf("exit code %d", code)
	}
	want := []string{"network", "store", "remove /scratch"}
	if diff := cmp.Diff(want, cl.get()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedInterruptedIngest(t *testing.T) {
	c, _ := newTestController(true)
	if err := c.Enter(Transferring); err != nil {
		t.Fatal(err)
	}
	c.Handle(context.Background(), Interrupt{})
	<-c.Done()
	if c.ExitCode() != ExitInterrupted {
		t.Errorf("exit code %d", c.ExitCode())
	}
}

func TestScratchDir(t *testing.T) {
	run := func(t *testing.T, ev mirror.Event) string {
		dir, err := os.MkdirTemp("", "lifecycletest")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.RemoveAll(dir) })
		if err = os.WriteFile(filepath.Join(dir, "blob"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		c := New(Config{
			Store:       mem.New(),
			ScratchPath: dir,
			Ephemeral:   true,
		})
		c.Run(context.Background(), events(ev))
		return dir
	}

	t.Run("success", func(t *testing.T) {
		dir := run(t, mirror.Event{Type: mirror.EventEnd})
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("scratch dir remains after success (err %v)", err)
		}
	})
	t.Run("failure", func(t *testing.T) {
		dir := run(t, mirror.Event{Type: mirror.EventError, Err: errors.New("boom")})
		if _, err := os.Stat(filepath.Join(dir, "blob")); err != nil {
			t.Errorf("scratch dir not preserved after failure: %s", err)
		}
	})
}

func TestShutdownLog(t *testing.T) {
	var buf bytes.Buffer
	defer log.SetOutput(log.Writer())
	defer log.SetFlags(log.Flags())
	log.SetOutput(&buf)
	log.SetFlags(0)

	c, _ := newTestController(false)
	c.Run(context.Background(), events(mirror.Event{Type: mirror.EventEnd}))

	want := []string{
		"Transfer complete!",
		"Closing network...",
		"Closing store...",
		"Removing /scratch...",
	}
	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
