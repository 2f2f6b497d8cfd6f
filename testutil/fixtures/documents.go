// =============================================================================
// 📦 测试数据工厂 - OpenAPI 文档测试数据
// =============================================================================
// 提供预定义的 NPL 引擎 OpenAPI 文档，用于测试
// =============================================================================
package fixtures

import "fmt"

// =============================================================================
// 🎯 OpenAPI 文档工厂
// =============================================================================

// IouDocument 返回标准的 iou 包文档：一个创建操作（必填 amount、
// 可选 description、issuer/payee 两个当事方）和一个 pay 动作。
//
// 编译后产出 npl_iou_Iou_create 与 npl_iou_Iou_pay 两个工具。
func IouDocument() string {
	return `{
	"openapi": "3.0.1",
	"info": {"title": "iou", "version": "1.0"},
	"paths": {
		"/npl/iou/Iou/": {
			"post": {
				"summary": "Create Iou",
				"requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Iou_Create"}}}}
			}
		},
		"/npl/iou/Iou/{id}/pay": {
			"post": {
				"summary": "Pay outstanding amount",
				"requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pay_Action"}}}}
			}
		}
	},
	"components": {
		"schemas": {
			"Iou_Create": {
				"type": "object",
				"properties": {
					"@parties": {"$ref": "#/components/schemas/Iou_Parties"},
					"amount": {"type": "number", "description": "Initial debt amount"},
					"description": {"type": "string", "nullable": true}
				},
				"required": ["amount", "description"]
			},
			"Iou_Parties": {
				"type": "object",
				"properties": {
					"issuer": {"type": "object"},
					"payee": {"type": "object"}
				},
				"required": ["issuer", "payee"]
			},
			"Pay_Action": {
				"type": "object",
				"properties": {
					"amount": {"type": "number", "description": "Payment amount"}
				},
				"required": ["amount"]
			}
		}
	}
}`
}

// Document 返回指定包与协议的最小文档：单个创建操作，
// 带一个必填的 value 字符串参数。
func Document(pkg, protocol string) string {
	return fmt.Sprintf(`{
	"openapi": "3.0.1",
	"info": {"title": "%s", "version": "1.0"},
	"paths": {
		"/npl/%s/%s/": {
			"post": {
				"requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/%s_Create"}}}}
			}
		}
	},
	"components": {
		"schemas": {
			"%s_Create": {
				"type": "object",
				"properties": {"value": {"type": "string"}},
				"required": ["value"]
			}
		}
	}
}`, pkg, pkg, protocol, protocol, protocol)
}

// EmptyDocument 返回没有任何操作的文档，编译产出零个工具
func EmptyDocument() string {
	return `{
	"openapi": "3.0.1",
	"info": {"title": "empty", "version": "1.0"},
	"paths": {},
	"components": {"schemas": {}}
}`
}

// =============================================================================
// 🔑 Keycloak 令牌响应工厂
// =============================================================================

// TokenResponse 返回密码授权的令牌响应
func TokenResponse(accessToken, refreshToken string, expiresIn int) string {
	return fmt.Sprintf(`{
	"access_token": "%s",
	"refresh_token": "%s",
	"expires_in": %d,
	"token_type": "Bearer"
}`, accessToken, refreshToken, expiresIn)
}
