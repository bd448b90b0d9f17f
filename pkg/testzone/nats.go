package testzone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/udisondev/zonauth/pkg/broker"
)

const (
	// natsImage образ брокера для федерации зон.
	natsImage = "nats:2.10-alpine"

	natsClientPort  = "4222/tcp"
	natsMonitorPort = "8222/tcp"
)

// federationBroker NATS контейнер, через который зоны проверяют
// пользователей друг друга. JetStream не нужен: только request/reply.
type federationBroker struct {
	container  testcontainers.Container
	url        string
	monitorURL string
	http       *http.Client
}

// startFederationBroker запускает NATS с мониторингом и ждёт /healthz.
func startFederationBroker(ctx context.Context) (*federationBroker, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        natsImage,
			Cmd:          []string{"--name", "zonauth-federation", "--http_port", "8222"},
			ExposedPorts: []string{natsClientPort, natsMonitorPort},
			Labels:       map[string]string{"org.zonauth.role": "federation"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(natsClientPort).WithStartupTimeout(30*time.Second),
				wait.ForHTTP("/healthz").WithPort(natsMonitorPort).WithStartupTimeout(30*time.Second),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start federation broker: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("federation broker host: %w", err)
	}

	client, err := container.MappedPort(ctx, natsClientPort)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("federation broker client port: %w", err)
	}
	monitor, err := container.MappedPort(ctx, natsMonitorPort)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("federation broker monitor port: %w", err)
	}

	return &federationBroker{
		container:  container,
		url:        fmt.Sprintf("nats://%s:%s", host, client.Port()),
		monitorURL: fmt.Sprintf("http://%s:%s", host, monitor.Port()),
		http:       &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// subsz ответ /subsz мониторинга NATS, нужные поля.
type subsz struct {
	Subscriptions []struct {
		Subject string `json:"subject"`
		Queue   string `json:"qgroup"`
	} `json:"subscriptions_list"`
}

// waitZoneServed ждёт, пока сервер зоны подпишется на свой subject
// проверок. До этого запросы других зон получают no responders.
func (b *federationBroker) waitZoneServed(ctx context.Context, zone string) error {
	subject, err := broker.SubjectForZone(zone)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		served, err := b.zoneServed(ctx, subject)
		if err != nil {
			return fmt.Errorf("zone %s: %w", zone, err)
		}
		if served {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("zone %s not subscribed to %s: %w", zone, subject, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *federationBroker) zoneServed(ctx context.Context, subject string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.monitorURL+"/subsz?subs=1&limit=4096", nil)
	if err != nil {
		return false, fmt.Errorf("build subsz request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("query subsz: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("query subsz: status %d", resp.StatusCode)
	}

	var out subsz
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode subsz: %w", err)
	}
	for _, s := range out.Subscriptions {
		if s.Subject == subject && s.Queue == broker.QueueGroup {
			return true, nil
		}
	}
	return false, nil
}

// Terminate останавливает контейнер. Безопасен для nil.
func (b *federationBroker) Terminate(ctx context.Context) error {
	if b == nil || b.container == nil {
		return nil
	}
	return b.container.Terminate(ctx)
}

func terminateContainer(ctx context.Context, c testcontainers.Container) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = c.Terminate(ctx)
}
