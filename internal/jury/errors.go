package jury

import (
	"errors"
	"fmt"
)

// ── 评审引擎错误 ──

var (
	ErrInsufficientCandidates = errors.New("合格候选人不足，无法满足评审名额要求")
	ErrMemberNotFound         = errors.New("该用户不是本程序的评审成员")
	ErrInvalidStateTransition = errors.New("当前程序状态不允许此操作")
	ErrMemberAlreadyResponded = fmt.Errorf("%w: 成员已答复", ErrInvalidStateTransition)
	ErrProcedureNotFound      = errors.New("程序不存在")
	ErrUnknownProcedureType   = errors.New("未知的程序类型")
)

// CollaboratorError 外部协作方（存储、目录、可用性、通知）失败
// 原样保留底层错误，供 errors.Is / errors.As 判断
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("协作方调用失败 [%s]: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func collaboratorErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{Op: op, Err: err}
}
