package handler

import "github.com/reachend/auth-service/internal/core/domain"

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role.String(),
		IsDeleted: u.IsDeleted,
		DeletedAt: u.DeletedAt,
		CreatedAt: u.CreatedAt,
	}
}

func toUserListResponse(users []*domain.User, limit, offset int) listUsersResponse {
	data := make([]userResponse, 0, len(users))
	for _, u := range users {
		data = append(data, toUserResponse(u))
	}
	return listUsersResponse{Data: data, Limit: limit, Offset: offset}
}
