package httpapi

import (
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

type LoginRequest struct {
	Login    string `json:"login" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=100"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type RevokeOthersRequest struct {
	CurrentTokenID int64 `json:"currentTokenId" binding:"required,gt=0"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type RegisterRequest struct {
	Login       string  `json:"login" binding:"required,min=3,max=50"`
	Email       string  `json:"email" binding:"required,email,max=255"`
	Password    string  `json:"password" binding:"required,min=6,max=100"`
	Age         int     `json:"age" binding:"min=0,max=150"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
}

type UpdateProfileRequest struct {
	Email       *string `json:"email" binding:"omitempty,email,max=255"`
	Age         *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Description *string `json:"description" binding:"omitempty,max=1000"`
}

type ListUsersQuery struct {
	Page        int    `form:"page"`
	Limit       int    `form:"limit"`
	LoginFilter string `form:"loginFilter"`
}

type AvailabilityQuery struct {
	Login string `form:"login"`
	Email string `form:"email"`
}

// UserView is the public projection of a user. It has no password field.
type UserView struct {
	ID          int64     `json:"id"`
	Login       string    `json:"login"`
	Email       string    `json:"email"`
	Age         int       `json:"age"`
	Description *string   `json:"description,omitempty"`
	Role        string    `json:"role"`
	IsVerified  bool      `json:"isVerified"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type TokenPairResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	SessionID    int64     `json:"sessionId"`
	User         *UserView `json:"user,omitempty"`
}

// SessionView omits the stored secret hash.
type SessionView struct {
	ID        int64     `json:"id"`
	IPAddress *string   `json:"ipAddress,omitempty"`
	UserAgent *string   `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UsersPageResponse struct {
	Data       []UserView `json:"data"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}

type AvailabilityResponse struct {
	LoginExists bool `json:"loginExists"`
	EmailExists bool `json:"emailExists"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type RevokedResponse struct {
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}

func toUserView(u *models.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		ID:          u.ID,
		Login:       u.Login,
		Email:       u.Email,
		Age:         u.Age,
		Description: u.Description,
		Role:        u.Role,
		IsVerified:  u.IsVerified,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toTokenPairResponse(p *models.TokenPair) TokenPairResponse {
	return TokenPairResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		SessionID:    p.SessionID,
		User:         toUserView(p.User),
	}
}

func toSessionViews(sessions []models.Session) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionView{
			ID:        s.ID,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
	return out
}

func toUsersPage(p *services.Page) UsersPageResponse {
	data := make([]UserView, 0, len(p.Data))
	for i := range p.Data {
		data = append(data, *toUserView(&p.Data[i]))
	}
	return UsersPageResponse{
		Data:       data,
		Total:      p.Total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: p.TotalPages,
	}
}
