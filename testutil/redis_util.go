package testutil

import (
	"context"
	"log"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisIntegrationSuite is a testify suite backed by a Redis container.
type RedisIntegrationSuite struct {
	suite.Suite
	Client         *goredis.Client
	redisContainer *tcredis.RedisContainer
}

// SetupSuite starts a Redis container before any tests in the suite are run.
func (s *RedisIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Fatalf("could not start redis container: %s", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("could not get redis connection string: %s", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		log.Fatalf("could not parse redis connection string: %s", err)
	}

	s.Client = goredis.NewClient(opts)
	s.redisContainer = container
}

// TearDownSuite stops and removes the container after all tests in the suite have been run.
func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.Client != nil {
		_ = s.Client.Close()
	}
	if s.redisContainer != nil {
		if err := s.redisContainer.Terminate(context.Background()); err != nil {
			log.Fatalf("failed to terminate redis container: %s", err)
		}
	}
}

// FlushAll empties the database between tests.
func (s *RedisIntegrationSuite) FlushAll() {
	s.Require().NoError(s.Client.FlushAll(context.Background()).Err())
}
