package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	source := NewStaticSource("fixed-token")

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-token", token)

	// 静态令牌无法刷新，Refresh 返回原值
	token, err = source.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed-token", token)
}

func TestAnonymousSource(t *testing.T) {
	source := NewAnonymousSource()

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token, "匿名模式返回空令牌")

	token, err = source.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
}
