package tcpostgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewContainerConfig(t *testing.T) {
	t.Setenv(imageEnv, "")
	c := newContainerConfig()
	assert.Equal(t, DefaultImage, c.req.Image)
	assert.Equal(t, []string{dbPort}, c.req.ExposedPorts)
	assert.Equal(t, "postgres", c.req.Env["POSTGRES_USER"])
	assert.NotNil(t, c.req.WaitingFor)

	c = newContainerConfig(
		WithImage("postgres:16-alpine"),
		WithName("x"),
		WithReadyTimeout(time.Second),
		WithInitialDatabase("f1", "secret", "insights"))
	assert.Equal(t, "postgres:16-alpine", c.req.Image)
	assert.Equal(t, "x", c.req.Name)
	assert.Equal(t, map[string]string{
		"POSTGRES_USER":     "f1",
		"POSTGRES_PASSWORD": "secret",
		"POSTGRES_DB":       "insights",
	}, c.req.Env)
}

func TestNewContainerConfig_ImageFromEnv(t *testing.T) {
	t.Setenv(imageEnv, "postgres:17")
	assert.Equal(t, "postgres:17", newContainerConfig().req.Image)
	assert.Equal(t, "postgres:18", newContainerConfig(WithImage("postgres:18")).req.Image)
}
