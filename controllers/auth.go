package controllers

import (
	"net/http"

	"hkl-restful/auth"
	"hkl-restful/models"
	"hkl-restful/services"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"
)

type AuthController struct {
	userService services.UserService
	tokens      *auth.Manager
	logger      *zap.Logger
}

func NewAuthController(userService services.UserService, tokens *auth.Manager, logger *zap.Logger) *AuthController {
	return &AuthController{userService: userService, tokens: tokens, logger: logger}
}

// UserResponse is the public projection of an account.
type UserResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	City  *string     `json:"city"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func mapModelToUserResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		City:  user.City,
	}
}

// RegisterRoutes sets up the public authentication routes.
func (ctl *AuthController) RegisterRoutes(ws *restful.WebService) {
	ws.Path("/api/auth").Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	tags := []string{"auth"}

	ws.Route(ws.POST("/register").To(ctl.registerHandler).
		Doc("Register a new account").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.RegisterInput{}).
		Returns(http.StatusOK, "Account created", TokenResponse{}).
		Returns(http.StatusBadRequest, "Invalid request body", ErrorResponse{}).
		Returns(http.StatusForbidden, "Role not open for registration", ErrorResponse{}).
		Returns(http.StatusConflict, "Email already in use", ErrorResponse{}))

	ws.Route(ws.POST("/login").To(ctl.loginHandler).
		Doc("Exchange credentials for a token").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(services.LoginInput{}).
		Returns(http.StatusOK, "Logged in", TokenResponse{}).
		Returns(http.StatusBadRequest, "Invalid request body", ErrorResponse{}).
		Returns(http.StatusUnauthorized, "Invalid credentials", ErrorResponse{}))
}

// registerHandler (Handles POST /api/auth/register)
func (ctl *AuthController) registerHandler(request *restful.Request, response *restful.Response) {
	input := new(services.RegisterInput)
	if err := request.ReadEntity(input); err != nil {
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := ctl.userService.Register(request.Request.Context(), input)
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	ctl.writeToken(response, user)
}

// loginHandler (Handles POST /api/auth/login)
func (ctl *AuthController) loginHandler(request *restful.Request, response *restful.Response) {
	input := new(services.LoginInput)
	if err := request.ReadEntity(input); err != nil {
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := ctl.userService.Login(request.Request.Context(), input)
	if err != nil {
		writeServiceError(response, ctl.logger, err)
		return
	}
	ctl.writeToken(response, user)
}

func (ctl *AuthController) writeToken(response *restful.Response, user *models.User) {
	token, err := ctl.tokens.GenerateToken(user)
	if err != nil {
		ctl.logger.Error("Could not generate token", zap.String("user_id", user.ID), zap.Error(err))
		writeError(response, http.StatusInternalServerError, "Server error")
		return
	}
	_ = response.WriteHeaderAndJson(http.StatusOK, TokenResponse{Token: token, User: mapModelToUserResponse(user)}, restful.MIME_JSON)
}
