// Package swarm 实现连接群管理
//
// Swarm 维护 节点 → 连接集合 的连接池，并拥有所有后台循环：
// 每个监听器一个 accept 循环，每条连接一个入站流接受循环。
//
// 连接池只持有代际校验句柄（internal/core/handle），每次使用前
// 重新解析；解析失败的句柄在扫描时被惰性剔除（自修复），
// 不做主动清扫。
//
// 出站路径"优先复用、失败拨新"：先扫描已有连接尝试开流，
// 全部失效才拨号新连接，并在新连接上重试一次开流。
package swarm
