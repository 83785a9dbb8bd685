package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestUpdate_CreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state")

	if err := Update(path, func(old []byte) ([]byte, error) {
		if old != nil {
			t.Fatalf("old = %q, want nil", old)
		}
		return []byte("one\n"), nil
	}); err != nil {
		t.Fatalf("Update(create): %v", err)
	}
	if err := Update(path, func(old []byte) ([]byte, error) {
		if string(old) != "one\n" {
			t.Fatalf("old = %q, want %q", old, "one\n")
		}
		return []byte("two\n"), nil
	}); err != nil {
		t.Fatalf("Update(replace): %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "two\n" {
		t.Fatalf("content = %q, want %q", data, "two\n")
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("expected no lingering lockfile, stat err=%v", err)
	}
}

func TestUpdate_CallbackErrorLeavesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	if err := os.WriteFile(path, []byte("keep"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	boom := errors.New("boom")
	err := Update(path, func([]byte) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "keep" {
		t.Fatalf("content = %q, want %q", data, "keep")
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("expected no lingering lockfile, stat err=%v", err)
	}
}

func TestUpdate_ConcurrentIncrementsSerialize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			errCh <- Update(path, func(old []byte) ([]byte, error) {
				n := 0
				if s := strings.TrimSpace(string(old)); s != "" {
					var err error
					if n, err = strconv.Atoi(s); err != nil {
						return nil, err
					}
				}
				return []byte(fmt.Sprintf("%d\n", n+1)), nil
			})
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(workers) {
		t.Fatalf("counter = %s, want %d", got, workers)
	}
}

func TestAcquire_TimesOutWhileHeld(t *testing.T) {
	oldLimit := waitLimit
	waitLimit = 20 * time.Millisecond
	defer func() { waitLimit = oldLimit }()

	path := filepath.Join(t.TempDir(), "state")
	held, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	_, err = Acquire(path)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second Acquire error = %v, want ErrTimeout", err)
	}

	if err := held.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again.Release()
}
