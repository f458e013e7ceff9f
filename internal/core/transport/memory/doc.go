// Package memory 实现进程内内存传输
//
// 用于测试：多个 Transport 实例通过共享的 Hub 互联，
// 连接与流的语义与真实传输一致（身份在"握手"时交换并校验、
// 双向流复用、关闭传播），但不经过网络。
//
// 地址格式：/memory/<名字>，监听 /memory/auto 时自动分配。
package memory
