package tools

import (
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

// schemaRefPrefix 文档内本地引用的固定前缀
const schemaRefPrefix = "#/components/schemas/"

// maxRefDepth 引用链深度上限，防止循环引用
const maxRefDepth = 8

// Resolver 在单个 OpenAPI 文档内解析 $ref 引用。
// 文档在 Resolver 的生命周期内不可变。
type Resolver struct {
	doc    *openapi3.T
	logger *zap.Logger
}

// NewResolver 创建引用解析器
func NewResolver(doc *openapi3.T, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		doc:    doc,
		logger: logger.With(zap.String("component", "schema_resolver")),
	}
}

// Resolve 解析 #/components/schemas/<Name> 形式的本地引用。
//
// 引用缺失、格式不支持或引用链过深时返回空 schema 而非报错：
// 单个损坏的 schema 退化为"无属性"，不中断同包其他工具的发现。
func (r *Resolver) Resolve(ref string) *openapi3.Schema {
	return r.resolve(ref, 0)
}

func (r *Resolver) resolve(ref string, depth int) *openapi3.Schema {
	if depth >= maxRefDepth {
		r.logger.Warn("schema 引用链过深，按空 schema 处理",
			zap.String("ref", ref),
			zap.Int("depth", depth),
		)
		return &openapi3.Schema{}
	}

	name, ok := strings.CutPrefix(ref, schemaRefPrefix)
	if !ok || name == "" {
		r.logger.Warn("不支持的 schema 引用格式，按空 schema 处理",
			zap.String("ref", ref),
		)
		return &openapi3.Schema{}
	}

	sref, ok := r.doc.Components.Schemas[name]
	if !ok || sref == nil {
		r.logger.Warn("schema 引用缺失，按空 schema 处理",
			zap.String("ref", ref),
		)
		return &openapi3.Schema{}
	}

	// 引用套引用时继续沿链解析
	if sref.Value == nil {
		if sref.Ref != "" {
			return r.resolve(sref.Ref, depth+1)
		}
		return &openapi3.Schema{}
	}
	return sref.Value
}

// Deref 返回属性节点指向的 schema：引用节点沿链解析，
// 内联节点直接返回，空节点返回 nil。
func (r *Resolver) Deref(sref *openapi3.SchemaRef) *openapi3.Schema {
	if sref == nil {
		return nil
	}
	if sref.Ref != "" {
		return r.Resolve(sref.Ref)
	}
	return sref.Value
}
