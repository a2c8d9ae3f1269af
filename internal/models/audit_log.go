package models

// AuditLog records a mutation performed through the API.
type AuditLog struct {
	BaseModel

	UserID    *string `gorm:"type:uuid;index" json:"user_id"`
	Username  string  `gorm:"size:64" json:"username"`
	Action    string  `gorm:"size:64;not null;index" json:"action"`
	Resource  string  `gorm:"size:64;index" json:"resource"`
	Result    string  `gorm:"size:16;not null" json:"result"`
	IPAddress string  `gorm:"size:64" json:"ip_address"`
	UserAgent string  `gorm:"size:255" json:"user_agent"`
	Metadata  string  `gorm:"type:text" json:"metadata"`
}
