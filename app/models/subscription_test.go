package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionStatusValid(t *testing.T) {
	for _, s := range []SubscriptionStatus{"pending", "incomplete", "active", "trialing", "past_due", "canceled"} {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []SubscriptionStatus{"", "unpaid", "ACTIVE", "expired"} {
		assert.False(t, s.Valid(), s)
	}
}

func TestSubscriptionStatusEntitling(t *testing.T) {
	assert.True(t, SubscriptionStatusActive.Entitling())
	assert.True(t, SubscriptionStatusTrialing.Entitling())
	assert.True(t, SubscriptionStatusPastDue.Entitling())
	assert.False(t, SubscriptionStatusPending.Entitling())
	assert.False(t, SubscriptionStatusIncomplete.Entitling())
	assert.False(t, SubscriptionStatusCanceled.Entitling())
	assert.True(t, SubscriptionStatusCanceled.IsTerminal())
}

func TestRemainingVideos(t *testing.T) {
	var nilSub *Subscription
	assert.Equal(t, 0, nilSub.RemainingVideos())
	assert.Equal(t, 3, (&Subscription{VideoCount: 1, VideoLimit: 4}).RemainingVideos())
	assert.Equal(t, 0, (&Subscription{VideoCount: 4, VideoLimit: 4}).RemainingVideos())
	assert.Equal(t, 0, (&Subscription{VideoCount: 6, VideoLimit: 4}).RemainingVideos())
}
