package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/types"
)

func newOpsClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Retry: fastPolicy(1)},
		&stubSource{token: "tok"}, nil, zap.NewNop())
}

const iouOpenAPI = `{
	"openapi": "3.0.0",
	"info": {"title": "iou", "version": "1.0.0"},
	"paths": {
		"/npl/iou/Iou/": {
			"post": {
				"requestBody": {
					"content": {
						"application/json": {
							"schema": {"$ref": "#/components/schemas/Iou_Create"}
						}
					}
				}
			}
		}
	},
	"components": {
		"schemas": {
			"Iou_Create": {
				"type": "object",
				"properties": {
					"amount": {"type": "number"},
					"issuer": {"$ref": "#/components/schemas/Party"}
				},
				"required": ["amount"]
			},
			"Party": {"type": "object", "properties": {"entity": {"type": "string"}}}
		}
	}
}`

func TestClient_FetchOpenAPI(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/npl/iou/-/openapi.json", r.URL.Path)
		w.Write([]byte(iouOpenAPI))
	})

	doc, err := client.FetchOpenAPI(context.Background(), "iou")
	require.NoError(t, err)

	item := doc.Paths["/npl/iou/Iou/"]
	require.NotNil(t, item)
	require.NotNil(t, item.Post)

	// $ref 保持为文本引用，不在传输层解析
	schemas := doc.Components.Schemas
	require.Contains(t, schemas, "Iou_Create")
	props := schemas["Iou_Create"].Value.Properties
	require.Contains(t, props, "issuer")
	assert.Equal(t, "#/components/schemas/Party", props["issuer"].Ref)
	assert.Nil(t, props["issuer"].Value)
	assert.Empty(t, props["amount"].Ref)
	require.NotNil(t, props["amount"].Value)
	assert.Equal(t, "number", props["amount"].Value.Type)
}

func TestClient_FetchOpenAPI_Malformed(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paths": [`))
	})

	_, err := client.FetchOpenAPI(context.Background(), "iou")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrClient))
}

func TestClient_CreateInstance(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/npl/iou/Iou/", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))

		// @parties 与业务字段同级
		parties, ok := payload["@parties"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, parties, "issuer")
		assert.Equal(t, float64(100), payload["amount"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"@id": "inst-1", "@state": "unpaid"}`))
	})

	parties := map[string]any{
		"issuer": map[string]any{
			"claims": map[string]any{
				"organization": []string{"Acme"},
				"department":   []string{"Finance"},
			},
		},
	}
	result, err := client.CreateInstance(context.Background(), "iou", "Iou",
		parties, map[string]any{"amount": 100})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", result["@id"])
	assert.Equal(t, "unpaid", result["@state"])
}

func TestClient_CreateInstance_NilParties(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		// 无参与方时发送空对象而非 null
		parties, ok := payload["@parties"].(map[string]any)
		require.True(t, ok)
		assert.Empty(t, parties)

		w.Write([]byte(`{"@id": "inst-2"}`))
	})

	result, err := client.CreateInstance(context.Background(), "iou", "Iou", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "inst-2", result["@id"])
}

func TestClient_InvokeAction(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/npl/iou/Iou/inst-1/pay", r.URL.Path)
		assert.Equal(t, "issuer", r.Header.Get("X-Party"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(50), payload["amount"])

		w.Write([]byte(`{"@state": "partially_paid"}`))
	})

	result, err := client.InvokeAction(context.Background(), "iou", "Iou", "inst-1", "pay",
		"issuer", map[string]any{"amount": 50})
	require.NoError(t, err)

	obj, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "partially_paid", obj["@state"])
}

func TestClient_InvokeAction_NoParty(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header["X-Party"]
		assert.False(t, present, "未指定执行方时不应发送 X-Party 头")
		w.Write([]byte(`{}`))
	})

	_, err := client.InvokeAction(context.Background(), "iou", "Iou", "inst-1", "pay", "", nil)
	require.NoError(t, err)
}

func TestClient_InvokeAction_ScalarResult(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`42.5`))
	})

	result, err := client.InvokeAction(context.Background(), "iou", "Iou", "inst-1", "getBalance", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 42.5, result, "动作返回值可以是标量")
}

func TestClient_InvokeAction_EmptyResponse(t *testing.T) {
	t.Run("204 无内容", func(t *testing.T) {
		client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		result, err := client.InvokeAction(context.Background(), "iou", "Iou", "inst-1", "confirm", "", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, result)
	})

	t.Run("200 空响应体", func(t *testing.T) {
		client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		result, err := client.InvokeAction(context.Background(), "iou", "Iou", "inst-1", "confirm", "", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{}, result)
	})
}

func TestClient_GetInstance(t *testing.T) {
	client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/npl/iou/Iou/inst-1", r.URL.Path)
		w.Write([]byte(`{"@id": "inst-1", "amount": 100}`))
	})

	result, err := client.GetInstance(context.Background(), "iou", "Iou", "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-1", result["@id"])
	assert.Equal(t, float64(100), result["amount"])
}

func TestClient_ListInstances(t *testing.T) {
	t.Run("默认分页", func(t *testing.T) {
		client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/npl/iou/Iou/", r.URL.Path)
			assert.Equal(t, "0", r.URL.Query().Get("page"))
			assert.Equal(t, "20", r.URL.Query().Get("size"))
			w.Write([]byte(`{"items": [], "totalElements": 0}`))
		})

		result, err := client.ListInstances(context.Background(), "iou", "Iou", -1, 0)
		require.NoError(t, err)
		assert.Contains(t, result, "items")
	})

	t.Run("自定义分页", func(t *testing.T) {
		client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "50", r.URL.Query().Get("size"))
			w.Write([]byte(`{"items": []}`))
		})

		_, err := client.ListInstances(context.Background(), "iou", "Iou", 2, 50)
		require.NoError(t, err)
	})
}

func TestClient_Health(t *testing.T) {
	t.Run("健康", func(t *testing.T) {
		client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/actuator/health", r.URL.Path)
			// 健康检查不应携带令牌
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{"status": "UP"}`))
		})

		assert.NoError(t, client.Health(context.Background()))
	})

	t.Run("不健康", func(t *testing.T) {
		client := newOpsClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		err := client.Health(context.Background())
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrServiceUnavailable))
	})

	t.Run("无法连接", func(t *testing.T) {
		client := NewClient(Config{BaseURL: "http://localhost:1"},
			&stubSource{token: "tok"}, nil, zap.NewNop())

		err := client.Health(context.Background())
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrTransport))
	})
}
