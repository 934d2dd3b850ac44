package model

import (
	"github.com/vtakaj/ShiftAgent/pkg/apperr"
)

// Validate 提交期校验：重复 ID、悬空引用、时间区间、空技能串
// 返回 invalid_input 类结构化错误；通过校验的排班表才允许进入求解。
func (s *Schedule) Validate() error {
	empIDs := make(map[string]bool, len(s.Employees))
	for _, e := range s.Employees {
		if e.ID == "" {
			return apperr.New(apperr.KindInvalidInput, "invalid_input.empty_id", "员工 ID 不能为空")
		}
		if empIDs[e.ID] {
			return apperr.Newf(apperr.KindInvalidInput, "invalid_input.duplicate_id", "员工 ID 重复: %s", e.ID)
		}
		empIDs[e.ID] = true
		for _, sk := range e.Skills {
			if sk == "" {
				return apperr.Newf(apperr.KindInvalidInput, "invalid_input.empty_skill", "员工 %s 的技能集中包含空字符串", e.ID)
			}
		}
	}

	shiftIDs := make(map[string]bool, len(s.Shifts))
	for _, sh := range s.Shifts {
		if sh.ID == "" {
			return apperr.New(apperr.KindInvalidInput, "invalid_input.empty_id", "班次 ID 不能为空")
		}
		if shiftIDs[sh.ID] {
			return apperr.Newf(apperr.KindInvalidInput, "invalid_input.duplicate_id", "班次 ID 重复: %s", sh.ID)
		}
		shiftIDs[sh.ID] = true

		if !sh.End.After(sh.Start) {
			return apperr.Newf(apperr.KindInvalidInput, "invalid_input.invalid_interval", "班次 %s 的结束时刻必须晚于起始时刻", sh.ID)
		}
		if sh.Priority < 1 || sh.Priority > 10 {
			return apperr.Newf(apperr.KindInvalidInput, "invalid_input.invalid_priority", "班次 %s 的优先级必须在 [1,10] 内，当前值 %d", sh.ID, sh.Priority)
		}
		for _, sk := range sh.RequiredSkills {
			if sk == "" {
				return apperr.Newf(apperr.KindInvalidInput, "invalid_input.empty_skill", "班次 %s 的所需技能中包含空字符串", sh.ID)
			}
		}
		if sh.Assignee != nil && !empIDs[*sh.Assignee] {
			return apperr.Newf(apperr.KindInvalidInput, "invalid_input.dangling_assignee", "班次 %s 引用了不存在的员工 %s", sh.ID, *sh.Assignee)
		}
	}

	return nil
}
