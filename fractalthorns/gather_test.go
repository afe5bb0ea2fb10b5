package fractalthorns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedFullRecordTextsBeforeGather(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.CachedFullRecordTexts()

	var ungathered *ItemsUngatheredError
	require.ErrorAs(t, err, &ungathered)
	assert.Equal(t, "record contents", ungathered.Kind)
}

func TestGatherFullRecordTexts(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	texts, err := client.GatherFullRecordTexts(ctx)
	require.NoError(t, err)

	// Only solved records have retrievable text.
	require.Len(t, texts, 2)
	assert.Contains(t, texts, "first")
	assert.Contains(t, texts, "second")
	assert.NotContains(t, texts, "hidden")
	assert.Equal(t, 2, up.count("record_text"))

	cached, err := client.CachedFullRecordTexts()
	require.NoError(t, err)
	assert.Equal(t, texts, cached)
}

func TestRegatherRejectedDuringCooldown(t *testing.T) {
	client, _, clock := newTestClient(t)
	ctx := context.Background()

	_, err := client.GatherFullRecordTexts(ctx)
	require.NoError(t, err)

	_, err = client.GatherFullRecordTexts(ctx)
	require.True(t, IsPurgeCooldown(err), "regather inside the cooldown must be rejected")

	// Once the cooldown elapses the sweep runs again.
	clock.Advance(121 * time.Minute)
	_, err = client.GatherFullRecordTexts(ctx)
	require.NoError(t, err)
}

func TestGatherRunsWhenResultExpired(t *testing.T) {
	client, _, clock := newTestClient(t)
	ctx := context.Background()

	_, err := client.GatherFullRecordTexts(ctx)
	require.NoError(t, err)

	// The gathered result expires after a day, well past the cooldown, so
	// a regather at that point proceeds.
	clock.Advance(25 * time.Hour)
	_, err = client.GatherFullRecordTexts(ctx)
	require.NoError(t, err)
}

func TestGatherFullImageDescriptions(t *testing.T) {
	client, up, _ := newTestClient(t)
	ctx := context.Background()

	descs, err := client.GatherFullImageDescriptions(ctx)
	require.NoError(t, err)

	require.Len(t, descs, 2)
	assert.Equal(t, "a spiral into the deep", descs["vertigo"].Description)
	assert.Equal(t, "concentric rings", descs["mandala"].Description)
	assert.Equal(t, 2, up.count("image_description"))

	cached, err := client.CachedFullImageDescriptions()
	require.NoError(t, err)
	assert.Equal(t, descs, cached)
}
