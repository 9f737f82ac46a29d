package backuptest

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	natsImage = "nats:latest"
	natsPort  = "4222/tcp"
)

// natsContainer NATS в контейнере для приёма отчётов.
type natsContainer struct {
	container testcontainers.Container
	url       string
}

func startNATS(ctx context.Context) (*natsContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        natsImage,
			ExposedPorts: []string{natsPort},
			WaitingFor:   wait.ForListeningPort(natsPort).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("get NATS host: %w", err)
	}
	port, err := container.MappedPort(ctx, natsPort)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("get NATS port: %w", err)
	}

	return &natsContainer{
		container: container,
		url:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
	}, nil
}

func (n *natsContainer) terminate(ctx context.Context) error {
	if n == nil || n.container == nil {
		return nil
	}
	return n.container.Terminate(ctx)
}

func terminateContainer(ctx context.Context, c testcontainers.Container) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_ = c.Terminate(ctx)
}
