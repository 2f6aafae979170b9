package db

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"kernelboard/internal/db"
)

func SetupContainer(ctx context.Context) (testcontainers.Container, *db.DB, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kernelboard",
			"POSTGRES_PASSWORD": "kernelboard123",
			"POSTGRES_DB":       "kernelboard",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		panic(err)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")

	POSTGRES_URL := fmt.Sprintf(
		"postgres://kernelboard:kernelboard123@%s:%s/kernelboard?sslmode=disable",
		host,
		port.Port(),
	)

	os.Setenv("POSTGRES_URL", POSTGRES_URL)

	database, err := db.New(ctx)
	if err != nil {
		panic(err)
	}

	if err := database.EnsureSchema(ctx); err != nil {
		panic(err)
	}

	return container, database, POSTGRES_URL
}
