package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/types"
)

// partiesProperty 授权角色的保留属性名，不参与业务字段展开
const partiesProperty = "@parties"

// Flattener 将嵌套的请求体 schema 展开为扁平有序的参数描述符列表。
// 参数名由属性路径以下划线连接而成，在单个工具内全局唯一。
type Flattener struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewFlattener 创建 schema 展开器
func NewFlattener(resolver *Resolver, logger *zap.Logger) *Flattener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flattener{
		resolver: resolver,
		logger:   logger.With(zap.String("component", "schema_flattener")),
	}
}

// Flatten 展开 schema 的全部业务属性：
//
//   - 引用对象属性以 前缀_ 连接递归展开
//   - 引用枚举属性降为携带枚举值的字符串参数
//   - 其他引用属性降为字符串形式的引用 ID
//   - 内联属性按 OpenAPI 原始类型映射，不再向下展开
//   - @parties 属性跳过，由 ExtractParties 单独处理
//
// 两条不同的属性路径展开出同名参数时返回 SCHEMA_COLLISION 错误，
// 调用方应放弃该操作的发现而非静默覆盖。
func (f *Flattener) Flatten(schema *openapi3.Schema) ([]types.ParameterDescriptor, error) {
	seen := make(map[string]struct{})
	return f.flatten(schema, "", seen)
}

func (f *Flattener) flatten(schema *openapi3.Schema, prefix string, seen map[string]struct{}) ([]types.ParameterDescriptor, error) {
	if schema == nil || len(schema.Properties) == 0 {
		return nil, nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	var params []types.ParameterDescriptor

	for _, propName := range sortedPropertyNames(schema.Properties) {
		if prefix == "" && propName == partiesProperty {
			continue
		}

		propRef := schema.Properties[propName]
		fullName := prefix + propName

		if propRef != nil && propRef.Ref != "" {
			resolved := f.resolver.Resolve(propRef.Ref)

			switch {
			case len(resolved.Properties) > 0:
				// 引用对象：递归展开嵌套属性
				nested, err := f.flatten(resolved, fullName+"_", seen)
				if err != nil {
					return nil, err
				}
				params = append(params, nested...)

			case len(resolved.Enum) > 0:
				if err := registerName(seen, fullName); err != nil {
					return nil, err
				}
				params = append(params, types.ParameterDescriptor{
					Name:     fullName,
					Type:     types.ParamString,
					Required: required[propName],
					Enum:     enumStrings(resolved.Enum),
				})

			default:
				// 标识符等简单引用类型
				if err := registerName(seen, fullName); err != nil {
					return nil, err
				}
				params = append(params, types.ParameterDescriptor{
					Name:        fullName,
					Type:        types.ParamString,
					Required:    required[propName],
					Description: "Reference ID",
				})
			}
			continue
		}

		if err := registerName(seen, fullName); err != nil {
			return nil, err
		}

		desc := types.ParameterDescriptor{
			Name:     fullName,
			Type:     types.ParamString,
			Required: required[propName],
		}
		if propRef != nil && propRef.Value != nil {
			value := propRef.Value
			desc.Type = paramTypeOf(value.Type)
			desc.Nullable = value.Nullable
			desc.Description = value.Description
			desc.Format = value.Format
			if len(value.Enum) > 0 {
				desc.Enum = enumStrings(value.Enum)
			}
			if value.Example != nil {
				desc.Example = fmt.Sprint(value.Example)
			}
		}
		params = append(params, desc)
	}

	return params, nil
}

// ExtractParties 读取 schema 的 @parties 属性，返回其中声明的
// 授权角色。角色按名称排序以保证参数顺序可复现。
func (f *Flattener) ExtractParties(schema *openapi3.Schema) []types.PartyDescriptor {
	if schema == nil || len(schema.Properties) == 0 {
		return nil
	}

	partiesRef, ok := schema.Properties[partiesProperty]
	if !ok || partiesRef == nil {
		return nil
	}

	resolved := f.resolver.Deref(partiesRef)
	if resolved == nil || len(resolved.Properties) == 0 {
		return nil
	}

	required := make(map[string]bool, len(resolved.Required))
	for _, name := range resolved.Required {
		required[name] = true
	}

	roles := sortedPropertyNames(resolved.Properties)
	parties := make([]types.PartyDescriptor, 0, len(roles))
	for _, role := range roles {
		parties = append(parties, types.PartyDescriptor{
			Role:     role,
			Required: required[role],
		})
	}
	return parties
}

// Unflatten 是 Flatten 的逆变换：把 前缀_后缀 形式的扁平参数
// 还原为嵌套对象。
//
// 可空参数先以显式 null 占位再被实参覆盖，引擎据此区分
// "字段存在且为 null" 与 "字段缺失"。值为 nil 的实参跳过。
func Unflatten(args map[string]any, params []types.ParameterDescriptor) map[string]any {
	nested := make(map[string]any)

	for _, p := range params {
		if p.Nullable {
			setPath(nested, strings.Split(p.Name, "_"), nil)
		}
	}

	for key, value := range args {
		if value == nil {
			continue
		}
		setPath(nested, strings.Split(key, "_"), value)
	}

	return nested
}

// setPath 沿路径写入值，中间节点不存在或不是对象时新建
func setPath(root map[string]any, parts []string, value any) {
	current := root
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// registerName 登记展开出的参数名，重名即冲突
func registerName(seen map[string]struct{}, name string) error {
	if _, dup := seen[name]; dup {
		return types.NewError(types.ErrSchemaCollision,
			fmt.Sprintf("flattened parameter name collision: %s", name))
	}
	seen[name] = struct{}{}
	return nil
}

// paramTypeOf 将 OpenAPI 原始类型映射为参数语义类型，未知类型按字符串处理
func paramTypeOf(schemaType string) types.ParamType {
	switch schemaType {
	case "string":
		return types.ParamString
	case "number":
		return types.ParamNumber
	case "integer":
		return types.ParamInteger
	case "boolean":
		return types.ParamBoolean
	case "array":
		return types.ParamArray
	case "object":
		return types.ParamObject
	default:
		return types.ParamString
	}
}

// enumStrings 将枚举值统一为字符串表示
func enumStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// sortedPropertyNames 返回排序后的属性名，保证展开顺序可复现
func sortedPropertyNames(props openapi3.Schemas) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
