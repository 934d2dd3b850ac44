package model

import (
	"strings"
	"time"
)

// Shift 班次 — 规划实体，Assignee 为规划变量
type Shift struct {
	ID             string    `json:"id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"` // 恒有 End > Start
	RequiredSkills []string  `json:"required_skills"`
	Location       string    `json:"location,omitempty"` // 仅信息性
	Priority       int       `json:"priority"`           // 1 最高 … 10 最低
	Pinned         bool      `json:"pinned"`             // true 时求解器不得改动 Assignee
	Assignee       *string   `json:"assignee"`           // 员工 ID 引用，nil = 未分配
}

// DurationMinutes 班次时长（整分钟）
func (s *Shift) DurationMinutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}

// OverlapsWith 与另一班次的 [start, end) 区间是否相交
func (s *Shift) OverlapsWith(other *Shift) bool {
	if other == nil {
		return false
	}
	return s.Start.Before(other.End) && other.Start.Before(s.End)
}

// Weekday 班次起始时刻在排班表时区下的星期（小写英文）
func (s *Shift) Weekday(loc *time.Location) string {
	return strings.ToLower(s.Start.In(loc).Weekday().String())
}

// IsAssigned 是否已分配员工
func (s *Shift) IsAssigned() bool { return s.Assignee != nil }

// AssigneeID 已分配员工 ID；未分配返回空串
func (s *Shift) AssigneeID() string {
	if s.Assignee == nil {
		return ""
	}
	return *s.Assignee
}

// Assign 设置分配（e 为空串表示取消分配）
func (s *Shift) Assign(employeeID string) {
	if employeeID == "" {
		s.Assignee = nil
		return
	}
	id := employeeID
	s.Assignee = &id
}

// Pin / Unpin 固定与解除固定
func (s *Shift) Pin()   { s.Pinned = true }
func (s *Shift) Unpin() { s.Pinned = false }

// Clone 深拷贝
func (s *Shift) Clone() *Shift {
	clone := *s
	clone.RequiredSkills = append([]string(nil), s.RequiredSkills...)
	if s.Assignee != nil {
		id := *s.Assignee
		clone.Assignee = &id
	}
	return &clone
}

