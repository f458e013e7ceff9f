// Package interfaces 定义 go-node 公共接口
//
// 本包只包含接口与回调类型定义，不包含实现。
// 实现位于 internal/core 下的各组件包。
package interfaces
