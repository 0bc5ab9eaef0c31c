package hydrus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls    int
	services []Service
	fail     bool
}

func (f *fakeSource) GetServices(ctx context.Context) ([]Service, Response) {
	f.calls++
	if f.fail {
		return nil, Failure(503, "unavailable")
	}
	return f.services, Response{Success: true, Status: 200}
}

func TestCatalog_EnsureRefreshesOnlyWhenEmpty(t *testing.T) {
	src := &fakeSource{services: []Service{{Key: "a", Type: ServiceLocalFileDomain}}}
	c := NewCatalog(src)

	require.NoError(t, c.Ensure(context.Background()))
	require.NoError(t, c.Ensure(context.Background()))
	assert.Equal(t, 1, src.calls)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 2, src.calls)
	assert.False(t, c.LoadedAt().IsZero())
}

func TestCatalog_RefreshFailureKeepsPrevious(t *testing.T) {
	src := &fakeSource{services: []Service{{Key: "a"}}}
	c := NewCatalog(src)
	require.NoError(t, c.Refresh(context.Background()))

	src.fail = true
	err := c.Refresh(context.Background())
	assert.ErrorContains(t, err, "status 503")
	_, ok := c.Lookup("a")
	assert.True(t, ok)
}

func TestCatalog_LocalFileDomainsSorted(t *testing.T) {
	c := NewStaticCatalog(
		Service{Key: "z", Type: ServiceLocalFileDomain},
		Service{Key: "r", Type: ServiceNumericalRating},
		Service{Key: "b", Type: ServiceLocalFileDomain},
	)

	local := c.LocalFileDomains()
	require.Len(t, local, 2)
	assert.Equal(t, "b", local[0].Key)
	assert.Equal(t, "z", local[1].Key)
	assert.Len(t, c.All(), 3)
}

func TestCatalog_StaticHasNoSource(t *testing.T) {
	c := NewStaticCatalog()
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNoSource)
	assert.ErrorIs(t, c.Ensure(context.Background()), ErrNoSource)
}

func TestServiceType_IsRating(t *testing.T) {
	assert.True(t, ServiceLikeDislikeRating.IsRating())
	assert.True(t, ServiceIncDecRating.IsRating())
	assert.False(t, ServiceLocalFileDomain.IsRating())
}
