package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mariozechner/coderunner/pkg/sandbox"
)

// Kernel is a sandbox.Runtime backed by the HTTP Python kernel that runs
// inside the sandbox container. All calls share one interpreter process,
// so module globals (sys.stdout included) persist between calls.
type Kernel struct {
	baseURL string
	client  *http.Client
	release func(ctx context.Context) error
	signal  func(ctx context.Context) error
}

// Ensure Kernel implements sandbox.Runtime
var (
	_ sandbox.Runtime     = (*Kernel)(nil)
	_ sandbox.Interrupter = (*Kernel)(nil)
)

// NewKernel returns a client for a kernel listening at baseURL
// (e.g. "http://127.0.0.1:49153"). A nil client uses http.DefaultClient.
func NewKernel(baseURL string, client *http.Client) *Kernel {
	if client == nil {
		client = http.DefaultClient
	}
	return &Kernel{baseURL: baseURL, client: client}
}

type execRequest struct {
	Code string `json:"code"`
}

type evalRequest struct {
	Expr string `json:"expr"`
}

type kernelResponse struct {
	Value string               `json:"value,omitempty"`
	Error *sandbox.PythonError `json:"error,omitempty"`
}

// Exec runs code as a block of statements.
func (k *Kernel) Exec(ctx context.Context, code string) error {
	var res kernelResponse
	if err := k.post(ctx, "/exec", execRequest{Code: code}, &res); err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	return nil
}

// Eval evaluates expr and returns str() of the result.
func (k *Kernel) Eval(ctx context.Context, expr string) (string, error) {
	var res kernelResponse
	if err := k.post(ctx, "/eval", evalRequest{Expr: expr}, &res); err != nil {
		return "", err
	}
	if res.Error != nil {
		return "", res.Error
	}
	return res.Value, nil
}

// Health reports whether the kernel answers its health endpoint.
func (k *Kernel) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kernel unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// WithInterrupt sets the function that sends SIGINT to the kernel process.
func (k *Kernel) WithInterrupt(fn func(ctx context.Context) error) *Kernel {
	k.signal = fn
	return k
}

// Interrupt raises KeyboardInterrupt in the code the kernel is running.
func (k *Kernel) Interrupt(ctx context.Context) error {
	if k.signal == nil {
		return errors.New("kernel cannot be interrupted")
	}
	return k.signal(ctx)
}

// Close removes the container behind the kernel, if it owns one.
func (k *Kernel) Close() error {
	if k.release == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return k.release(ctx)
}

func (k *Kernel) post(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling kernel %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kernel error %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding kernel response: %w", err)
	}
	return nil
}
