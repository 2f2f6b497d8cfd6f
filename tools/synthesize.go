package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/types"
)

// 动作工具注入的保留参数名
const (
	paramInstanceID = "instance_id"
	paramParty      = "party"
)

// 授权角色展开出的参数名后缀
const (
	orgSuffix  = "_organization"
	deptSuffix = "_department"
)

// CreateImpl 执行协议实例创建的远程调用。
// parties 为授权声明，data 为还原后的嵌套业务数据。
type CreateImpl func(ctx context.Context, parties map[string]any, data map[string]any) (map[string]any, error)

// ActionImpl 在既有协议实例上执行命名动作的远程调用。
type ActionImpl func(ctx context.Context, instanceID, party string, params map[string]any) (any, error)

// Synthesizer 把展开后的参数描述符与远程调用实现装配成
// 可被调用框架内省和调用的 Tool。生成过程完全由描述符驱动，
// 不依赖任何运行时代码生成。
type Synthesizer struct {
	flattener *Flattener
	logger    *zap.Logger
}

// NewSynthesizer 创建函数合成器
func NewSynthesizer(flattener *Flattener, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		flattener: flattener,
		logger:    logger.With(zap.String("component", "function_synthesizer")),
	}
}

// SynthesizeCreate 合成协议实例创建工具。
//
// 参数列表 = 每个授权角色的 {role}_organization / {role}_department
// + 请求体 schema 展开出的业务参数，必填在前、可选在后。
// 调用时组织和部门同时提供的角色才会生成授权声明，业务参数
// 经 Unflatten 还原为嵌套结构后提交。
func (s *Synthesizer) SynthesizeCreate(pkg, protocol, summary string, schema *openapi3.Schema, impl CreateImpl) (*types.Tool, error) {
	bodyParams, err := s.flattener.Flatten(schema)
	if err != nil {
		return nil, err
	}
	parties := s.flattener.ExtractParties(schema)

	all := make([]types.ParameterDescriptor, 0, len(parties)*2+len(bodyParams))
	for _, party := range parties {
		all = append(all,
			types.ParameterDescriptor{
				Name:        party.Role + orgSuffix,
				Type:        types.ParamString,
				Required:    party.Required,
				Description: fmt.Sprintf("Organization name for %s party", party.Role),
			},
			types.ParameterDescriptor{
				Name:        party.Role + deptSuffix,
				Type:        types.ParamString,
				Required:    party.Required,
				Description: fmt.Sprintf("Department name for %s party", party.Role),
			},
		)
	}
	all = append(all, bodyParams...)

	if err := ensureDistinct(all); err != nil {
		return nil, err
	}
	orderParameters(all)

	if summary == "" {
		summary = fmt.Sprintf("Create %s instance", protocol)
	}

	return &types.Tool{
		Name:        fmt.Sprintf("npl_%s_%s_create", pkg, protocol),
		Description: createDoc(summary, pkg, protocol, all),
		Kind:        types.ToolKindCreate,
		Package:     pkg,
		Protocol:    protocol,
		Parameters:  all,
		Handler:     s.createHandler(parties, bodyParams, impl),
	}, nil
}

// SynthesizeAction 合成动作执行工具。
//
// 参数列表 = instance_id（必填）+ party（可选）+ 动作请求体
// 展开出的业务参数。schema 为 nil 表示无请求体的动作。
func (s *Synthesizer) SynthesizeAction(pkg, protocol, action, summary string, schema *openapi3.Schema, impl ActionImpl) (*types.Tool, error) {
	bodyParams, err := s.flattener.Flatten(schema)
	if err != nil {
		return nil, err
	}

	all := make([]types.ParameterDescriptor, 0, len(bodyParams)+2)
	all = append(all,
		types.ParameterDescriptor{
			Name:        paramInstanceID,
			Type:        types.ParamString,
			Required:    true,
			Description: "The protocol instance UUID",
		},
		types.ParameterDescriptor{
			Name:        paramParty,
			Type:        types.ParamString,
			Nullable:    true,
			Description: "The party role executing this action (e.g. 'seller', 'buyer')",
		},
	)
	all = append(all, bodyParams...)

	if err := ensureDistinct(all); err != nil {
		return nil, err
	}
	orderParameters(all)

	if summary == "" {
		summary = fmt.Sprintf("Execute %s", action)
	}

	return &types.Tool{
		Name:        fmt.Sprintf("npl_%s_%s_%s", pkg, protocol, action),
		Description: actionDoc(summary, protocol, action, all),
		Kind:        types.ToolKindAction,
		Package:     pkg,
		Protocol:    protocol,
		Action:      action,
		Parameters:  all,
		Handler:     s.actionHandler(bodyParams, impl),
	}, nil
}

func (s *Synthesizer) createHandler(parties []types.PartyDescriptor, bodyParams []types.ParameterDescriptor, impl CreateImpl) types.InvokeFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		supplied := make(map[string]any, len(args))
		for k, v := range args {
			supplied[k] = v
		}

		// 组织和部门同时提供的角色才生成授权声明
		claims := make(map[string]any)
		for _, party := range parties {
			org := popString(supplied, party.Role+orgSuffix)
			dept := popString(supplied, party.Role+deptSuffix)
			if org == "" || dept == "" {
				continue
			}
			claims[party.Role] = map[string]any{
				"claims": map[string]any{
					"organization": []string{org},
					"department":   []string{dept},
				},
			}
		}

		data := Unflatten(supplied, bodyParams)
		return impl(ctx, claims, data)
	}
}

func (s *Synthesizer) actionHandler(bodyParams []types.ParameterDescriptor, impl ActionImpl) types.InvokeFunc {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		supplied := make(map[string]any, len(args))
		for k, v := range args {
			supplied[k] = v
		}

		instanceID := popString(supplied, paramInstanceID)
		if instanceID == "" {
			return nil, types.NewError(types.ErrInvalidRequest, "instance_id is required")
		}
		party := popString(supplied, paramParty)

		result, err := impl(ctx, instanceID, party, Unflatten(supplied, bodyParams))
		if err != nil {
			return nil, err
		}
		return wrapResult(result), nil
	}
}

// popString 取出并删除字符串实参，缺失或非字符串返回空串
func popString(args map[string]any, key string) string {
	value, ok := args[key]
	if !ok {
		return ""
	}
	delete(args, key)
	s, _ := value.(string)
	return s
}

// wrapResult 非对象结果包一层，工具结果始终是 JSON 对象
func wrapResult(result any) map[string]any {
	switch v := result.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	default:
		return map[string]any{"result": v}
	}
}

// ensureDistinct 校验装配后的完整参数表无重名。
// 业务字段与注入参数（角色参数、instance_id、party）撞名
// 同样视为 schema 冲突，放弃该操作。
func ensureDistinct(params []types.ParameterDescriptor) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p.Name]; dup {
			return types.NewError(types.ErrSchemaCollision,
				fmt.Sprintf("flattened parameter name collision: %s", p.Name))
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// orderParameters 必填且非可空的参数在前，其余在后，同组内按名称排序
func orderParameters(params []types.ParameterDescriptor) {
	sort.SliceStable(params, func(i, j int) bool {
		pi, pj := params[i], params[j]
		if pi.EffectiveRequired() != pj.EffectiveRequired() {
			return pi.EffectiveRequired()
		}
		return pi.Name < pj.Name
	})
}

func createDoc(summary, pkg, protocol string, params []types.ParameterDescriptor) string {
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Creates a new %s protocol instance in the %s package.\n\n", protocol, pkg)
	writeParamDocs(&b, params)
	b.WriteString("Returns:\n    Created protocol instance with @id, or error details if creation fails.")
	return b.String()
}

func actionDoc(summary, protocol, action string, params []types.ParameterDescriptor) string {
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Executes the %s action on a %s protocol instance.\n\n", action, protocol)
	writeParamDocs(&b, params)
	b.WriteString("Returns:\n    Action result or empty dict for void actions.")
	return b.String()
}

// writeParamDocs 渲染 Args 段，行格式 {name}: {type} ({required|optional}) - {desc}
func writeParamDocs(b *strings.Builder, params []types.ParameterDescriptor) {
	if len(params) == 0 {
		return
	}
	b.WriteString("Args:\n")
	for _, p := range params {
		req := "(optional)"
		if p.EffectiveRequired() {
			req = "(required)"
		}
		fmt.Fprintf(b, "    %s: %s %s", p.Name, p.Type, req)
		if desc := p.DisplayDescription(); desc != "" {
			b.WriteString(" - " + desc)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
