package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-publish/internal/config"
	"github.com/vadim/neo-publish/internal/domain/analysis/entity"
	"github.com/vadim/neo-publish/internal/httpx/upstream/chatcompletion"
)

func completionServer(t *testing.T, status int, content string, seen *chatcompletion.Request, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 400 {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviderProfiles(t *testing.T) {
	tests := []struct {
		p     Provider
		name  string
		model string
		url   string
	}{
		{DeepSeek, "DeepSeek", "deepseek-chat", "https://api.deepseek.com/v1"},
		{Zhipu, "智谱GLM", "glm-4", "https://open.bigmodel.cn/api/paas/v4"},
		{Qwen, "通义千问", "qwen-plus", "https://dashscope.aliyuncs.com/compatible-mode/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.p.String())
			assert.Equal(t, tt.model, tt.p.Model())
			assert.Equal(t, tt.url, tt.p.BaseURL())
		})
	}

	assert.Panics(t, func() { _ = Provider(42).String() })

	cfg := config.AI{DeepSeekKey: "d", ZhipuKey: "z", DashScopeKey: "q"}
	assert.Equal(t, "d", DeepSeek.Key(cfg))
	assert.Equal(t, "z", Zhipu.Key(cfg))
	assert.Equal(t, "q", Qwen.Key(cfg))
}

func TestPrompt(t *testing.T) {
	req := entity.Request{IdeaTitle: " 宠物社区 ", IdeaDescription: "面向养宠人群的内容社区"}

	verified, err := Prompt(Verified, req)
	require.NoError(t, err)
	assert.Contains(t, verified, "- 标题：宠物社区\n")
	assert.Contains(t, verified, "所在城市：未提供")
	assert.Contains(t, verified, "executionSupport")

	req.UserLocation = "杭州"
	single, err := Prompt(Single, req)
	require.NoError(t, err)
	assert.Contains(t, single, "用户所在城市：杭州")
	assert.NotContains(t, single, "executionSupport")
}

func TestCallerCall(t *testing.T) {
	var seen chatcompletion.Request
	var calls int32
	srv := completionServer(t, http.StatusOK, "以下是结果：```json\n{\"characteristics\":{\"category\":\"宠物\"}}\n```", &seen, &calls)

	c := NewCaller(Zhipu, chatcompletion.New(srv.URL, "key"))
	obj, err := c.Call(context.Background(), Verified, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "宠物", obj.Text("characteristics", "category"))

	assert.Equal(t, "glm-4", seen.Model)
	assert.InDelta(t, 0.3, seen.Temperature, 1e-9)
	assert.Equal(t, 6000, seen.MaxTokens)
	require.Len(t, seen.Messages, 2)
	assert.True(t, strings.HasSuffix(seen.Messages[0].Content, "直接以{开头。"))
	assert.Equal(t, "prompt", seen.Messages[1].Content)

	_, err = c.Call(context.Background(), Single, "prompt")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, seen.Temperature, 1e-9)
	assert.Equal(t, 4000, seen.MaxTokens)
}

func TestCallerNotConfigured(t *testing.T) {
	c := NewCaller(Qwen, nil)
	_, err := c.Call(context.Background(), Verified, "prompt")
	require.ErrorIs(t, err, entity.ErrProviderNotConfigured)
	assert.Contains(t, err.Error(), "千问API未配置")

	callers := NewCallers(config.AI{DeepSeekKey: "d"})
	require.Len(t, callers, 3)
	assert.NotNil(t, callers[0].client)
	assert.Nil(t, callers[1].client)
	assert.Nil(t, callers[2].client)
}

func TestCallerInvalidJSON(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusOK, "抱歉，我无法回答", nil, &calls)

	c := NewCaller(DeepSeek, chatcompletion.New(srv.URL, "key"))
	_, err := c.Call(context.Background(), Verified, "prompt")
	assert.Error(t, err)
}

func TestCallerBreakerOpens(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusBadGateway, "", nil, &calls)

	c := NewCaller(DeepSeek, chatcompletion.New(srv.URL, "key"))
	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), Verified, "prompt")
		var apiErr *chatcompletion.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	}

	_, err := c.Call(context.Background(), Verified, "prompt")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
