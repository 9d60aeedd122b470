package domain_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
)

func TestParseConversationID(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		p, oa, customer, err := domain.ParseConversationID("zalo:123:456")
		require.NoError(t, err)
		assert.Equal(t, domain.PlatformZalo, p)
		assert.Equal(t, "123", oa)
		assert.Equal(t, "456", customer)
	})

	t.Run("CustomerWithColon", func(t *testing.T) {
		_, _, customer, err := domain.ParseConversationID("widget:widget:abc:def")
		require.NoError(t, err)
		assert.Equal(t, "abc:def", customer)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, _, _, err := domain.ParseConversationID("facebook:only")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestMessagePreview(t *testing.T) {
	text := "  hi there "
	img := "https://cdn/x.png"

	assert.Equal(t, "hi there", domain.Message{Text: &text}.Preview())
	assert.Equal(t, "[Image]", domain.Message{Image: &img}.Preview())
	assert.Equal(t, "", domain.Message{}.Preview())
}
