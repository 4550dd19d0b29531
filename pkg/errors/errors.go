package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrLockNotAcquired 程序级互斥锁已被其他请求持有
var ErrLockNotAcquired = errors.New("该程序正在被其他操作处理，请稍后重试")
