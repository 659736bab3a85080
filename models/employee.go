package models

import (
	"context"
	"time"
)

// Employee is a catalog lookup: job role (puesto) drives the ranking peer
// group, project drives budget attribution, UserId links the receiving
// employee to an authenticated actor for requisition visibility.
type Employee struct {
	ID             int        `gorm:"primary_key" json:"id"`
	UserId         int        `gorm:"index" json:"user_id"`
	FullName       string     `gorm:"size:150;not null" json:"full_name"`
	DocumentNumber string     `gorm:"size:20;index" json:"document_number"`
	JobRole        string     `gorm:"size:100;index;not null" json:"job_role"`
	ProjectId      *int       `gorm:"index" json:"project_id"`
	HireDate       *time.Time `json:"hire_date"`
	IsActive       *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	return fetchById[Employee](ctx, id)
}
