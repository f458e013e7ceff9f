// Package protocol 提供协议注册表与协议协商器
//
// 协商器基于 multistream-select 协议：
// https://github.com/multiformats/multistream-select
//
// 消息格式：[varint(len+1)][消息字节]['\n']。
// 发起方提议协议 ID，响应方回显（接受）或回复 "na"（拒绝）。
// 双方首先交换版本令牌 "/multistream/1.0.0"，不匹配即终止。
package protocol
