package api

import "github.com/khanghh/kgate/model"

const APIVersion = "1.0"

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{APIVersion: APIVersion, Data: data}
}

func NewErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		APIVersion: APIVersion,
		Error:      &APIErrorInfo{Code: code, Message: message},
	}
}

type UserInfoResponse struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	IsAdmin  bool     `json:"isAdmin"`
	PortalID string   `json:"portalId,omitempty"`
	Teams    []string `json:"teams,omitempty"`
}

type LoginResponse struct {
	User            UserInfoResponse `json:"user"`
	Token           string           `json:"token,omitempty"`
	AuthTokenID     string           `json:"authTokenId,omitempty"`
	AuthLogRecordID string           `json:"authLogRecordId,omitempty"`
}

type SecondStepResponse struct {
	Status    string         `json:"status"`
	View      string         `json:"view"`
	LoginData map[string]any `json:"loginData,omitempty"`
}

func teamNames(user *model.User) []string {
	if len(user.Teams) == 0 {
		return nil
	}
	names := make([]string, len(user.Teams))
	for i, team := range user.Teams {
		names[i] = team.Name
	}
	return names
}
