package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health is the daemon's self-reported status.
type Health struct {
	Serving bool
	Relay   bool
}

// Probe asks the daemon listening on socketPath for its health. An error means
// nothing answered.
func Probe(ctx context.Context, socketPath string) (Health, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return Health{}, fmt.Errorf("dial daemon: %w", err)
	}
	defer func() { _ = conn.Close() }()

	c := healthpb.NewHealthClient(conn)
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}
	h := Health{Serving: resp.GetStatus() == healthpb.HealthCheckResponse_SERVING}

	resp, err = c.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceRelay})
	if err == nil {
		h.Relay = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}
	return h, nil
}

// WaitReady polls Probe until the daemon reports serving or timeout elapses.
func WaitReady(ctx context.Context, socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pctx, cancel := context.WithTimeout(ctx, time.Second)
		h, err := Probe(pctx, socketPath)
		cancel()
		if err == nil && h.Serving {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(300 * time.Millisecond):
		}
	}
	return false
}

// Spawn starts workbookd for profileName in the background. The binary next
// to the running executable wins over one on PATH.
func Spawn(profileName string) error {
	bin := programName
	if exe, err := os.Executable(); err == nil {
		local := filepath.Join(filepath.Dir(exe), programName)
		if _, err := os.Stat(local); err == nil {
			bin = local
		}
	}
	cmd := exec.Command(bin, "--profile", profileName)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", programName, err)
	}
	return cmd.Process.Release()
}
