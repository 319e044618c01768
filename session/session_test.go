package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/lifecycle"
	"github.com/bobg/bsdrive/swarm"

	_ "github.com/bobg/bsdrive/store/mem"
)

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) > 0 {
		t.Errorf("%s has %d entries, want none", dir, len(entries))
	}
}

func TestBadKey(t *testing.T) {
	for _, key := range []string{"", "abc", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcde", "zz23456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"} {
		tmp := t.TempDir()
		_, err := Bootstrap(context.Background(), Config{Mode: ModeCopy, Key: key, TempDir: tmp})
		var verr *bsdrive.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("key %q: got %v, want ValidationError", key, err)
		}
		assertEmptyDir(t, tmp)
	}
}

func TestBootstrapCleanup(t *testing.T) {
	tmp := t.TempDir()
	_, err := Bootstrap(context.Background(), Config{
		Mode:        ModeCreate,
		TempDir:     tmp,
		StoreConfig: map[string]interface{}{"type": "nonesuch"},
	})
	var berr *BootstrapError
	if !errors.As(err, &berr) {
		t.Fatalf("got %v, want BootstrapError", err)
	}
	assertEmptyDir(t, tmp)
}

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "storage")
	conf := Config{
		Mode:        ModeCreate,
		StoragePath: dir,
		CacheSize:   16,
		Network:     swarm.Config{ListenAddr: "127.0.0.1:0"},
	}

	s1, err := Bootstrap(ctx, conf)
	if err != nil {
		t.Fatal(err)
	}
	if s1.Ephemeral {
		t.Error("explicit storage is ephemeral")
	}
	key := s1.Drive.Key()
	if err = s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Bootstrap(ctx, conf)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if s2.Drive.Key() != key {
		t.Error("drive identity not reused")
	}
}

func TestStoreConfig(t *testing.T) {
	s, err := Bootstrap(context.Background(), Config{
		Mode:        ModeCreate,
		TempDir:     t.TempDir(),
		StoreConfig: map[string]interface{}{"type": "mem"},
		Verbose:     true,
		Network:     swarm.Config{ListenAddr: "127.0.0.1:0"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err = s.close(true); err != nil {
		t.Fatal(err)
	}
	if _, err = os.Stat(s.ScratchPath); !os.IsNotExist(err) {
		t.Errorf("scratch dir remains (err %v)", err)
	}
}

type lastSample struct {
	mu                 sync.Mutex
	downloaded, total int64
}

func (l *lastSample) Start(int64) {}

func (l *lastSample) Update(cur, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.downloaded, l.total = cur, total
}

func (l *lastSample) Label(string) {}
func (l *lastSample) Stop()        {}

func TestCopy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	content := []byte("0123456789")
	input := t.TempDir()
	if err := os.WriteFile(filepath.Join(input, "file"), content, 0644); err != nil {
		t.Fatal(err)
	}

	reg := swarm.NewRegistry()
	netconf := swarm.Config{ListenAddr: "127.0.0.1:0", Discovery: reg}

	seeder, err := Bootstrap(ctx, Config{Mode: ModeCreate, TempDir: t.TempDir(), Network: netconf})
	if err != nil {
		t.Fatal(err)
	}

	seedCtx, seedCancel := context.WithCancel(ctx)
	defer seedCancel()

	type result struct {
		code int
		err  error
	}
	seedDone := make(chan result, 1)
	go func() {
		code, err := seeder.Run(seedCtx, RunOptions{Dir: input, Join: DefaultJoinOptions(ModeCreate)})
		seedDone <- result{code: code, err: err}
	}()

	for {
		if _, err := seeder.Drive.LocalHead(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("seeder never committed")
		case r := <-seedDone:
			t.Fatalf("seeder stopped early with code %d, err %v", r.code, r.err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	leecher, err := Bootstrap(ctx, Config{Mode: ModeCopy, Key: seeder.Drive.Key().String(), TempDir: t.TempDir(), Network: netconf})
	if err != nil {
		t.Fatal(err)
	}

	var (
		output = t.TempDir()
		ind    = new(lastSample)
	)
	code, err := leecher.Run(ctx, RunOptions{
		Dir:       output,
		Join:      DefaultJoinOptions(ModeCopy),
		Indicator: ind,
		Interval:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if code != lifecycle.ExitOK {
		t.Errorf("copy exit code %d", code)
	}

	got, err := os.ReadFile(filepath.Join(output, "file"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("got %q, want %q", got, content)
	}

	ind.mu.Lock()
	if ind.total == 0 || ind.downloaded != ind.total {
		t.Errorf("final progress %d/%d", ind.downloaded, ind.total)
	}
	ind.mu.Unlock()

	if _, err = os.Stat(leecher.ScratchPath); !os.IsNotExist(err) {
		t.Errorf("copy scratch dir remains (err %v)", err)
	}

	seedCancel()
	r := <-seedDone
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.code != lifecycle.ExitOK {
		t.Errorf("seed exit code %d", r.code)
	}
	if _, err = os.Stat(seeder.ScratchPath); !os.IsNotExist(err) {
		t.Errorf("seed scratch dir remains (err %v)", err)
	}
}

func TestInterruptWhileWaiting(t *testing.T) {
	var key [32]byte
	s, err := Bootstrap(context.Background(), Config{
		Mode:    ModeCopy,
		Key:     bsdrive.Ref(key).String(),
		TempDir: t.TempDir(),
		Network: swarm.Config{ListenAddr: "127.0.0.1:0", Discovery: swarm.NewRegistry()},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	code, err := s.Run(ctx, RunOptions{Dir: t.TempDir(), Join: DefaultJoinOptions(ModeCopy)})
	if err != nil {
		t.Fatal(err)
	}
	if code != lifecycle.ExitInterrupted {
		t.Errorf("exit code %d", code)
	}
	if _, err = os.Stat(s.ScratchPath); !os.IsNotExist(err) {
		t.Errorf("scratch dir remains (err %v)", err)
	}
}
