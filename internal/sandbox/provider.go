package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	agentPort    = "8080/tcp"
	viewerPort   = "6080/tcp"
	devtoolsPort = "9222/tcp"
)

// Sandbox is one provisioned execution environment. AgentURL points at the
// automation agent inside the container; ViewerURL at the noVNC page used
// for human verification of a run in progress.
type Sandbox struct {
	ContainerID string
	SandboxID   string
	AgentURL    string
	ViewerURL   string
	DevtoolsURL string
}

// Provider provisions and tears down sandbox containers from a fixed
// template image.
type Provider struct {
	client *client.Client
	image  string
}

func NewProvider(templateImage string) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Provider{
		client: cli,
		image:  templateImage,
	}, nil
}

// Create provisions a sandbox for the given session id and blocks until the
// agent inside it answers health checks.
func (p *Provider) Create(ctx context.Context, sessionID string) (*Sandbox, error) {
	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"session-id": sessionID,
			"managed-by": "harvester",
		},
		Env: []string{
			"DISPLAY=:1",
			"AGENT_PORT=8080",
		},
		ExposedPorts: nat.PortSet{
			agentPort:    struct{}{},
			viewerPort:   struct{}{},
			devtoolsPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			agentPort:    []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}},
			viewerPort:   []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}},
			devtoolsPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "0"}},
		},
		AutoRemove: false,
		ShmSize:    2 * 1024 * 1024 * 1024,
	}

	name := fmt.Sprintf("sandbox-%s", shortID(sessionID))
	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	agentHost, err := hostPort(inspect.NetworkSettings.Ports, agentPort)
	if err != nil {
		return nil, err
	}
	viewerHost, err := hostPort(inspect.NetworkSettings.Ports, viewerPort)
	if err != nil {
		return nil, err
	}
	devtoolsHost, err := hostPort(inspect.NetworkSettings.Ports, devtoolsPort)
	if err != nil {
		return nil, err
	}

	sb := &Sandbox{
		ContainerID: resp.ID,
		SandboxID:   shortID(resp.ID),
		AgentURL:    fmt.Sprintf("http://localhost:%s", agentHost),
		ViewerURL:   fmt.Sprintf("http://localhost:%s/vnc.html", viewerHost),
		DevtoolsURL: fmt.Sprintf("ws://localhost:%s", devtoolsHost),
	}

	if err := p.waitForAgentReady(ctx, sb.AgentURL); err != nil {
		return nil, fmt.Errorf("agent failed to become ready: %w", err)
	}

	return sb, nil
}

// Destroy stops and removes a sandbox container.
func (p *Provider) Destroy(ctx context.Context, containerID string) error {
	timeout := 10
	stopOptions := container.StopOptions{
		Timeout: &timeout,
	}

	if err := p.client.ContainerStop(ctx, containerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// Alive reports whether the sandbox container is still running.
func (p *Provider) Alive(ctx context.Context, containerID string) bool {
	inspect, err := p.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// EnsureImage pulls the sandbox template image if it is not present locally.
func (p *Provider) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", p.image, err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (p *Provider) Close() error {
	return p.client.Close()
}

// waitForAgentReady polls the agent's health endpoint until it responds or
// the retry budget is exhausted.
func (p *Provider) waitForAgentReady(ctx context.Context, agentURL string) error {
	url := agentURL + "/healthz"
	maxRetries := 40 // 20 seconds total (40 * 500ms)

	for i := 0; i < maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("agent did not become ready after %d retries", maxRetries)
}

func hostPort(ports nat.PortMap, port nat.Port) (string, error) {
	bindings := ports[port]
	if len(bindings) == 0 {
		return "", fmt.Errorf("no host binding for container port %s", port)
	}
	return bindings[0].HostPort, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
