package tcpostgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultImage is used unless F1I_TEST_POSTGRES_IMAGE is set
	DefaultImage = "postgres:15"
	imageEnv     = "F1I_TEST_POSTGRES_IMAGE"
	dbPort       = "5432/tcp"
)

// PostgresContainer is a started postgres container together with the
// credentials it was created with
type PostgresContainer struct {
	testcontainers.Container
	user     string
	password string
	dbName   string
}

type containerConfig struct {
	req      testcontainers.ContainerRequest
	user     string
	password string
	dbName   string
}

type PostgresContainerOption func(c *containerConfig)

func WithImage(image string) PostgresContainerOption {
	return func(c *containerConfig) {
		c.req.Image = image
	}
}

func WithReadyTimeout(d time.Duration) PostgresContainerOption {
	return func(c *containerConfig) {
		c.req.WaitingFor = wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(d)
	}
}

// WithName names the container. Containers with the same name are reused.
func WithName(containerName string) PostgresContainerOption {
	return func(c *containerConfig) {
		c.req.Name = containerName
	}
}

func WithInitialDatabase(user, password, dbName string) PostgresContainerOption {
	return func(c *containerConfig) {
		c.user, c.password, c.dbName = user, password, dbName
	}
}

func newContainerConfig(opts ...PostgresContainerOption) *containerConfig {
	image := DefaultImage
	if v := os.Getenv(imageEnv); v != "" {
		image = v
	}
	c := &containerConfig{
		req: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{dbPort},
			Cmd:          []string{"postgres", "-c", "fsync=off"},
		},
		user:     "postgres",
		password: "password",
		dbName:   "postgres",
	}
	WithReadyTimeout(30 * time.Second)(c)
	for _, opt := range opts {
		opt(c)
	}
	c.req.Env = map[string]string{
		"POSTGRES_USER":     c.user,
		"POSTGRES_PASSWORD": c.password,
		"POSTGRES_DB":       c.dbName,
	}
	return c
}

// SetupPostgres starts (or reuses) a postgres container
//
//nolint:whitespace // editor/linter issue
func SetupPostgres(ctx context.Context, opts ...PostgresContainerOption) (
	*PostgresContainer, error,
) {
	cfg := newContainerConfig(opts...)
	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: cfg.req,
			Started:          true,
			Reuse:            cfg.req.Name != "",
		})
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{
		Container: container,
		user:      cfg.user,
		password:  cfg.password,
		dbName:    cfg.dbName,
	}, nil
}

// URL returns the connection url of the database as seen from the host
func (c *PostgresContainer) URL(ctx context.Context) (string, error) {
	port, err := c.MappedPort(ctx, nat.Port(dbPort))
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, port.Port(), c.dbName), nil
}
