// Package handle 提供代际校验的句柄分配器
//
// 连接池不直接持有连接对象，只持有 Handle；每次使用前通过
// Resolve 重新解析为活跃对象。对象被释放后句柄失效，
// 槽位回收时代际号递增，旧句柄永远无法解析到新对象。
//
// Resolve 失败表示"对象不再活跃"，属于常规资源流转，
// 不是错误条件。
package handle
