// Package context 提供请求上下文相关的子包。
//
// 子包列表：
//   - xctx: Context 增强，注入/提取请求 ID、追踪信息、客户端地址与指纹标识
//
// 设计原则：
//   - 所有上下文信息通过 context.Context 传递，不使用全局变量
//   - 日志通过 xctx.LogAttrs 自动携带这些字段，业务代码无需显式传参
package context
