package dto

// ── 用户模块 DTO ──

// CreateUserRequest 创建用户（候选人）请求
type CreateUserRequest struct {
	FullName        string  `json:"full_name"        binding:"required,min=2,max=200"`
	Email           string  `json:"email"            binding:"required,email"`
	Password        string  `json:"password"         binding:"required,min=8,max=64"`
	Role            string  `json:"role"             binding:"omitempty,oneof=user admin"`
	AcademicRank    string  `json:"academic_rank"    binding:"required,oneof=professor associate_professor"`
	ScientificField string  `json:"scientific_field" binding:"required,max=200"`
	University      string  `json:"university"       binding:"required,max=255"`
	DistanceToCity  float64 `json:"distance_to_city" binding:"gte=0"`
}

// UpdateUserRequest 更新用户信息请求（仅更新非 nil 字段）
type UpdateUserRequest struct {
	FullName        *string  `json:"full_name"        binding:"omitempty,min=2,max=200"`
	Email           *string  `json:"email"            binding:"omitempty,email"`
	Password        *string  `json:"password"         binding:"omitempty,min=8,max=64"`
	Role            *string  `json:"role"             binding:"omitempty,oneof=user admin"`
	AcademicRank    *string  `json:"academic_rank"    binding:"omitempty,oneof=professor associate_professor"`
	ScientificField *string  `json:"scientific_field" binding:"omitempty,max=200"`
	University      *string  `json:"university"       binding:"omitempty,max=255"`
	DistanceToCity  *float64 `json:"distance_to_city" binding:"omitempty,gte=0"`
}

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	ScientificField string `form:"scientific_field" binding:"omitempty,max=200"`
	University      string `form:"university"       binding:"omitempty,max=255"`
	AcademicRank    string `form:"academic_rank"    binding:"omitempty,oneof=professor associate_professor"`
	Keyword         string `form:"keyword"          binding:"omitempty,max=50"`
}

// UserResponse 用户信息响应（脱敏）
type UserResponse struct {
	ID                  string  `json:"id"`
	FullName            string  `json:"full_name"`
	Email               string  `json:"email"`
	Role                string  `json:"role"`
	AcademicRank        string  `json:"academic_rank"`
	ScientificField     string  `json:"scientific_field"`
	University          string  `json:"university"`
	DistanceToCity      float64 `json:"distance_to_city"`
	PenultimateJuryDate *string `json:"penultimate_jury_date,omitempty"`
	LastJuryDate        *string `json:"last_jury_date,omitempty"`
	CreatedAt           string  `json:"created_at"`
}
