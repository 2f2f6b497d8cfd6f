// =============================================================================
// 📡 NPL Engine 类型化操作
// =============================================================================
// 在 Client.Do 之上封装引擎的协议操作：OpenAPI 文档获取、协议实例
// 创建、动作执行、实例查询与健康检查。
// =============================================================================

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/BaSui01/nplflow/types"
)

const (
	// apiRoot 引擎协议 API 的根路径
	apiRoot = "/npl"

	// defaultPageSize 实例列表默认分页大小
	defaultPageSize = 20

	// healthTimeout 健康检查超时
	healthTimeout = 5 * time.Second
)

// FetchOpenAPI 获取指定包的 OpenAPI 文档。
// 文档按原样解析，$ref 保持为文本引用，由上层 schema 解析器处理。
func (c *Client) FetchOpenAPI(ctx context.Context, pkg string) (*openapi3.T, error) {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("%s/%s/-/openapi.json", apiRoot, pkg),
	})
	if err != nil {
		return nil, err
	}

	var doc openapi3.T
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, types.NewError(types.ErrClient,
			fmt.Sprintf("malformed OpenAPI document for package %s", pkg)).
			WithCause(err)
	}
	return &doc, nil
}

// CreateInstance 创建协议实例。
// parties 是角色到授权声明的映射，与扁平化的业务字段一起作为请求体：
//
//	{"@parties": {...}, ...data}
func (c *Client) CreateInstance(ctx context.Context, pkg, protocol string, parties map[string]any, data map[string]any) (map[string]any, error) {
	if parties == nil {
		parties = map[string]any{}
	}

	body := make(map[string]any, len(data)+1)
	body["@parties"] = parties
	for key, value := range data {
		body[key] = value
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("%s/%s/%s/", apiRoot, pkg, protocol),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// InvokeAction 在协议实例上执行动作。
// party 非空时通过 X-Party 头声明执行方。204 或空响应体视为成功，
// 返回空对象。
func (c *Client) InvokeAction(ctx context.Context, pkg, protocol, instanceID, action string, party string, params map[string]any) (any, error) {
	if params == nil {
		params = map[string]any{}
	}

	header := http.Header{}
	if party != "" {
		header.Set("X-Party", party)
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("%s/%s/%s/%s/%s", apiRoot, pkg, protocol, instanceID, action),
		Header: header,
		Body:   params,
	})
	if err != nil {
		return nil, err
	}
	return decodeAny(resp)
}

// GetInstance 查询单个协议实例
func (c *Client) GetInstance(ctx context.Context, pkg, protocol, instanceID string) (map[string]any, error) {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("%s/%s/%s/%s", apiRoot, pkg, protocol, instanceID),
	})
	if err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// ListInstances 分页查询协议实例列表。
// page 小于 0 时归零，size 小于等于 0 时使用默认分页大小。
func (c *Client) ListInstances(ctx context.Context, pkg, protocol string, page, size int) (map[string]any, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("%s/%s/%s/", apiRoot, pkg, protocol),
		Query: url.Values{
			"page": {strconv.Itoa(page)},
			"size": {strconv.Itoa(size)},
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// Health 检查引擎健康状态。
// 健康端点不鉴权也不重试，单次请求固定 5 秒超时。
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	fullURL := c.buildURL("/actuator/health", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid health check request").
			WithCause(err).
			WithURL(fullURL)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewError(types.ErrTransport, "engine health check failed").
			WithCause(err).
			WithURL(fullURL)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.ErrServiceUnavailable, "engine is not healthy").
			WithHTTPStatus(resp.StatusCode).
			WithURL(fullURL)
	}
	return nil
}

// decodeObject 解析对象响应，204 或空响应体返回空对象
func decodeObject(resp *Response) (map[string]any, error) {
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(resp.Body)) == 0 {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, types.NewError(types.ErrClient, "malformed engine response").
			WithCause(err).
			WithResponseBody(string(resp.Body))
	}
	return out, nil
}

// decodeAny 解析任意 JSON 响应，动作返回值可以是标量
func decodeAny(resp *Response) (any, error) {
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(resp.Body)) == 0 {
		return map[string]any{}, nil
	}

	var out any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, types.NewError(types.ErrClient, "malformed engine response").
			WithCause(err).
			WithResponseBody(string(resp.Body))
	}
	return out, nil
}
