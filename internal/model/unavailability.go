package model

import "time"

// Unavailability 不可用时间段，对应 unavailabilities
// [StartDate, EndDate] 闭区间内用户不可参加评审
type Unavailability struct {
	UnavailabilityID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"unavailability_id"`
	UserID           string    `gorm:"type:uuid;not null"                             json:"user_id"`
	StartDate        time.Time `gorm:"not null"                                       json:"start_date"`
	EndDate          time.Time `gorm:"not null"                                       json:"end_date"`
	Reason           string    `gorm:"type:varchar(200)"                              json:"reason,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (Unavailability) TableName() string { return "unavailabilities" }

// Covers 判断 t 是否落在该时间段内
func (u *Unavailability) Covers(t time.Time) bool {
	return !t.Before(u.StartDate) && !t.After(u.EndDate)
}
