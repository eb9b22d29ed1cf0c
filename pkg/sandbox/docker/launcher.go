package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/mariozechner/coderunner/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by this system.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "coderunner"
	// LabelKernelID identifies a single kernel container.
	LabelKernelID = "kernel-id"
	// KernelImage is the default kernel container image.
	KernelImage = "coderunner-kernel:latest"
	// ServerPort is the HTTP port exposed by the kernel container.
	ServerPort = "8000"
)

// Options configure a Launcher.
type Options struct {
	// Image is the kernel image. Defaults to KernelImage.
	Image string
	// Pull fetches the image from its registry when it is missing locally.
	Pull bool
	// HealthTimeout bounds the wait for a fresh kernel to answer.
	// Defaults to 120s.
	HealthTimeout time.Duration
	// HTTPClient talks to the kernel. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Launcher starts kernel containers. Its Load method is a sandbox.Loader.
type Launcher struct {
	client *client.Client
	opts   Options
}

// New creates a Launcher connected to the Docker daemon from the environment.
func New(opts Options) (*Launcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if opts.Image == "" {
		opts.Image = KernelImage
	}
	if opts.HealthTimeout == 0 {
		opts.HealthTimeout = 120 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Launcher{client: cli, opts: opts}, nil
}

// Verify Load has the sandbox.Loader shape.
var _ sandbox.Loader = (*Launcher)(nil).Load

// Load creates and starts a fresh kernel container and waits until the
// kernel inside answers. The returned runtime removes the container on Close.
func (l *Launcher) Load(ctx context.Context) (sandbox.Runtime, error) {
	if err := l.ensureImage(ctx); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	cfg := &container.Config{
		Image: l.opts.Image,
		Labels: map[string]string{
			LabelManager:  LabelManagerValue,
			LabelKernelID: id,
		},
		ExposedPorts: nat.PortSet{
			nat.Port(ServerPort + "/tcp"): {},
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			nat.Port(ServerPort + "/tcp"): []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0", // Dynamically assigned port.
				},
			},
		},
	}

	resp, err := l.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, containerName(id))
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	remove := func(ctx context.Context) error {
		return l.client.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})
	}

	if err := l.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		l.discard(remove)
		return nil, fmt.Errorf("starting container: %w", err)
	}

	c, err := l.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		l.discard(remove)
		return nil, fmt.Errorf("inspecting container: %w", err)
	}
	port, err := getPort(c)
	if err != nil {
		l.discard(remove)
		return nil, err
	}

	kernel := NewKernel("http://127.0.0.1:"+port, l.opts.HTTPClient).WithInterrupt(func(ctx context.Context) error {
		return l.client.ContainerKill(ctx, resp.ID, "SIGINT")
	})
	if err := l.waitForHealth(ctx, kernel); err != nil {
		l.discard(remove)
		return nil, err
	}
	kernel.release = remove

	slog.Info("Kernel started", "kernelID", id, "port", port)
	return kernel, nil
}

// Cleanup removes kernel containers left behind by earlier processes.
func (l *Launcher) Cleanup(ctx context.Context) error {
	containers, err := l.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
		),
	})
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}
	for _, c := range containers {
		slog.Info("Removing orphaned kernel", "id", c.ID, "kernelID", c.Labels[LabelKernelID])
		if err := l.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			slog.Warn("Failed to remove container", "id", c.ID, "error", err)
		}
	}
	return nil
}

// Close releases the Docker client resources.
func (l *Launcher) Close() error {
	return l.client.Close()
}

// --- internal helpers ---

func (l *Launcher) ensureImage(ctx context.Context) error {
	_, _, err := l.client.ImageInspectWithRaw(ctx, l.opts.Image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) || !l.opts.Pull {
		return fmt.Errorf("kernel image '%s' not found, run 'make build-kernel': %w", l.opts.Image, err)
	}

	slog.Info("Pulling kernel image", "image", l.opts.Image)
	rc, err := l.client.ImagePull(ctx, l.opts.Image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", l.opts.Image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pulling image %s: %w", l.opts.Image, err)
	}
	return nil
}

func (l *Launcher) waitForHealth(ctx context.Context, k *Kernel) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, l.opts.HealthTimeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for kernel health")
		case <-ticker.C:
			if err := k.Health(timeoutCtx); err == nil {
				return nil
			}
		}
	}
}

func (l *Launcher) discard(remove func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := remove(ctx); err != nil {
		slog.Warn("Failed to remove kernel container", "error", err)
	}
}

func containerName(kernelID string) string {
	return "coderunner-kernel-" + kernelID
}

func getPort(c types.ContainerJSON) (string, error) {
	ports := c.NetworkSettings.Ports[nat.Port(ServerPort+"/tcp")]
	if len(ports) > 0 {
		return ports[0].HostPort, nil
	}
	return "", fmt.Errorf("container running but port not mapped")
}
