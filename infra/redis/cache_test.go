package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/infra/redis"
	"github.com/0m3kk/lunafold/marketplace"
	"github.com/0m3kk/lunafold/publishing"
	"github.com/0m3kk/lunafold/secrets"
	"github.com/0m3kk/lunafold/testutil"
)

type RedisSuite struct {
	testutil.RedisIntegrationSuite
	cache   *redis.AggregateCache
	secrets *redis.SecretStore
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.FlushAll()
	s.cache = redis.NewAggregateCache(s.Client, time.Minute)
	s.secrets = redis.NewSecretStore(s.Client)
}

func (s *RedisSuite) TestAggregateCache_PutAndGet() {
	// GIVEN
	ctx := context.Background()
	_, _, ok, err := s.cache.Get(ctx, publishing.Kind, "myapp")
	s.Require().NoError(err)
	s.False(ok)

	// WHEN
	s.Require().NoError(s.cache.Put(ctx, publishing.Kind, "myapp", 3, []byte(`{"v":3}`)))

	// THEN
	body, seq, ok, err := s.cache.Get(ctx, publishing.Kind, "myapp")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(3), seq)
	s.JSONEq(`{"v":3}`, string(body))

	version, err := s.cache.GetVersion(ctx, publishing.Kind, "myapp")
	s.Require().NoError(err)
	s.Equal(int64(3), version)

	ttl, err := s.Client.PTTL(ctx, "luna:aggregate:application:myapp").Result()
	s.Require().NoError(err)
	s.True(ttl > 0 && ttl <= time.Minute)
}

func (s *RedisSuite) TestAggregateCache_OlderStateNeverOverwritesNewer() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, publishing.Kind, "myapp", 5, []byte(`{"v":5}`)))

	s.Require().NoError(s.cache.Put(ctx, publishing.Kind, "myapp", 4, []byte(`{"v":4}`)))
	s.Require().NoError(s.cache.Put(ctx, publishing.Kind, "myapp", 5, []byte(`{"v":"again"}`)))

	body, seq, ok, err := s.cache.Get(ctx, publishing.Kind, "myapp")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(5), seq)
	s.JSONEq(`{"v":5}`, string(body))
}

func (s *RedisSuite) TestAggregateCache_EvictKeepsVersion() {
	// GIVEN
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, marketplace.Kind, "offer-a", 2, []byte(`{}`)))

	// WHEN
	s.Require().NoError(s.cache.Evict(ctx, marketplace.Kind, "offer-a", 3))

	// THEN
	_, _, ok, err := s.cache.Get(ctx, marketplace.Kind, "offer-a")
	s.Require().NoError(err)
	s.False(ok)
	version, err := s.cache.GetVersion(ctx, marketplace.Kind, "offer-a")
	s.Require().NoError(err)
	s.Equal(int64(3), version)

	// AND a late state of the deleted aggregate is ignored
	s.Require().NoError(s.cache.Put(ctx, marketplace.Kind, "offer-a", 2, []byte(`{}`)))
	_, _, ok, err = s.cache.Get(ctx, marketplace.Kind, "offer-a")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisSuite) TestAggregateCache_KindsAreSeparate() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, publishing.Kind, "same-id", 1, []byte(`{}`)))

	version, err := s.cache.GetVersion(ctx, marketplace.Kind, "same-id")

	s.Require().NoError(err)
	s.Equal(int64(0), version)
}

func (s *RedisSuite) TestSecretStore() {
	ctx := context.Background()

	_, err := s.secrets.Get(ctx, "deploy-params")
	s.ErrorIs(err, secrets.ErrNotFound)

	s.Require().NoError(s.secrets.Put(ctx, "deploy-params", `{"sku":"S1"}`))
	v, err := s.secrets.Get(ctx, "deploy-params")
	s.Require().NoError(err)
	s.Equal(`{"sku":"S1"}`, v)
}

func (s *RedisSuite) TestSecretStore_ResolvesOfferStepSecrets() {
	// GIVEN
	ctx := context.Background()
	s.Require().NoError(s.secrets.Put(ctx, "hook-key", "k3y"))
	offer := &marketplace.Offer{
		ID: "contoso",
		ProvisioningSteps: []marketplace.ProvisioningStep{
			{Name: "notify", Properties: &marketplace.WebhookStepProperties{AuthKeySecretName: eventsrc.Ptr("hook-key")}},
		},
	}

	// WHEN
	resolved, err := marketplace.ResolveStepSecrets(ctx, offer, s.secrets)

	// THEN
	s.Require().NoError(err)
	s.Equal(map[string]string{"hook-key": "k3y"}, resolved)
}
