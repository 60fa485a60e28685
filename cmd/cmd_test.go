package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
	"chatrelay/internal/model"
	"chatrelay/internal/pkg/userkey"
)

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setDefaults()
	viper.Set("line.channel_secret", "secret")
	viper.Set("line.channel_access_token", "token")

	var c config.Config
	require.NoError(t, viper.Unmarshal(&c))
	require.NoError(t, c.Validate())

	assert.Equal(t, "gpt-3.5-turbo", c.AI.Model)
	assert.Equal(t, 3, c.Chat.HistoryLimit)
	assert.Equal(t, "bolt", c.Store.Backend)
	assert.InDelta(t, 0.9, c.AI.Options.Temperature, 1e-9)
	assert.Equal(t, 768, c.AI.Options.MaxTokens)
	assert.Equal(t, "1792x1024", c.Image.Size)
	assert.NotEmpty(t, c.Line.QuickReplies)
	assert.True(t, c.KnownModel("gpt-4o"))
	assert.True(t, c.KnownModel("gpt-4-turbo-preview"))
	require.NotNil(t, c.Storage.Local)
	assert.Equal(t, "data/storage", c.Storage.Local.BasePath)
}

func TestKeyFromFlag(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{name: "empty", userID: "", wantErr: true},
		{name: "user id", userID: "U1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := keyFromFlag(tt.userID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userkey.Derive(tt.userID), key)
		})
	}
}

func TestDescribeTurn(t *testing.T) {
	assert.Equal(t, "Hello", describeTurn(model.UserTurn(model.TextContent("Hello"))))
	assert.Equal(t, "<image https://x/1.jpg>", describeTurn(model.UserTurn(model.ImageContent("https://x/1.jpg"))))
}
