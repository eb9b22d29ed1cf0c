package capturetest

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/mariozechner/coderunner/pkg/sandbox/docker"
)

// StartKernel runs kernel/server.py with the local python3 and returns a
// client for it that interrupts with SIGINT. The test is skipped when
// python3 is not installed. The process is killed when the test ends.
func StartKernel(t testing.TB) *docker.Kernel {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}

	_, file, _, _ := runtime.Caller(0)
	script := filepath.Join(filepath.Dir(file), "..", "..", "..", "kernel", "server.py")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cmd := exec.Command(python, "-u", script)
	cmd.Env = append(os.Environ(), "KERNEL_HOST=127.0.0.1", "KERNEL_PORT="+strconv.Itoa(port))
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting kernel: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	k := docker.NewKernel(fmt.Sprintf("http://127.0.0.1:%d", port), nil).WithInterrupt(func(ctx context.Context) error {
		return cmd.Process.Signal(os.Interrupt)
	})

	deadline := time.Now().Add(10 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := k.Health(ctx)
		cancel()
		if err == nil {
			return k
		}
		if time.Now().After(deadline) {
			t.Fatalf("kernel did not become healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
