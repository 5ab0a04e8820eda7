package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crypto-wallet/internal/blockchain"
	"crypto-wallet/internal/domain"
	"crypto-wallet/internal/keystore"
	"crypto-wallet/internal/repository"
	"crypto-wallet/internal/service"
)

const sessionCookieName = "jwt"

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth      service.AuthService
	users     service.UserService
	chain     *blockchain.Client
	keys      keystore.Store
	cookieTTL time.Duration
	devMode   bool
	rateLimit int64
	logger    *logrus.Logger
}

func NewHandler(
	auth service.AuthService,
	users service.UserService,
	chain *blockchain.Client,
	keys keystore.Store,
	cookieTTL time.Duration,
	devMode bool,
	rateLimit int64,
	logger *logrus.Logger,
) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:      auth,
		users:     users,
		chain:     chain,
		keys:      keys,
		cookieTTL: cookieTTL,
		devMode:   devMode,
		rateLimit: rateLimit,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	if h.rateLimit > 0 {
		router.Use(rateLimitMiddleware(h.rateLimit))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	// the original app mounts the user router at both paths
	for _, prefix := range []string{"/users", "/api/v1/users"} {
		users := router.Group(prefix)
		{
			users.POST("/signup", h.signup)
			users.POST("/login", h.login)
			users.PATCH("/verifyEmail/:token", h.verifyEmail)
			users.POST("/resendVerification", h.resendVerification)
			users.POST("/forgotPassword", h.forgotPassword)
			users.PATCH("/resetPassword/:token", h.resetPassword)
			users.POST("/restore", h.restoreWallet)
			users.POST("/sendTransaction", h.sendTransaction)
			users.GET("/", h.listUsers)

			gated := users.Group("", h.sessionGate())
			{
				gated.PATCH("/updateMyPassword", h.updateMyPassword)
				gated.PATCH("/updateMe", h.updateMe)
				gated.POST("/transfer", h.transfer)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, failBody(fmt.Sprintf("Can't find %s on this server!", c.Request.URL.Path)))
	})
}

type signupRequest struct {
	UserName        string  `json:"userName" binding:"required"`
	Email           string  `json:"email" binding:"required"`
	Password        string  `json:"password" binding:"required"`
	PasswordConfirm string  `json:"passwordConfirm" binding:"required"`
	Balance         float64 `json:"balance"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	user, signed, err := h.auth.Signup(c.Request.Context(), service.SignupInput{
		UserName:        req.UserName,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Balance:         req.Balance,
	})
	if err != nil {
		h.abortError(c, err)
		return
	}

	h.setSessionCookie(c, signed)
	c.JSON(http.StatusCreated, envelope{
		Status: "success",
		Token:  signed,
		Data:   gin.H{"user": userToResponse(user)},
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody("Please provide email and password!"))
		return
	}

	_, signed, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.abortError(c, err)
		return
	}

	h.setSessionCookie(c, signed)
	c.JSON(http.StatusOK, envelope{Status: "success", Token: signed})
}

func (h *Handler) verifyEmail(c *gin.Context) {
	user, signed, err := h.auth.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.abortError(c, err)
		return
	}

	h.setSessionCookie(c, signed)
	c.JSON(http.StatusOK, envelope{
		Status: "success",
		Token:  signed,
		Data:   gin.H{"user": userToResponse(user)},
	})
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) resendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	if err := h.auth.ResendVerification(c.Request.Context(), req.Email, requestBaseURL(c)); err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Status: "success", Message: "Email verification token sent to email!"})
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	if err := h.auth.ForgotPassword(c.Request.Context(), req.Email, requestBaseURL(c)); err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Status: "success", Message: "Token sent to email!"})
}

type resetPasswordRequest struct {
	Password        string `json:"password" binding:"required"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required"`
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	user, signed, err := h.auth.ResetPassword(c.Request.Context(), c.Param("token"), req.Password, req.PasswordConfirm)
	if err != nil {
		h.abortError(c, err)
		return
	}

	h.setSessionCookie(c, signed)
	c.JSON(http.StatusOK, envelope{
		Status: "success",
		Token:  signed,
		Data:   gin.H{"user": userToResponse(user)},
	})
}

type updatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" binding:"required"`
	Password        string `json:"password" binding:"required"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required"`
}

func (h *Handler) updateMyPassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	user, signed, err := h.auth.UpdatePassword(c.Request.Context(), principal(c).ID, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		h.abortError(c, err)
		return
	}

	h.setSessionCookie(c, signed)
	c.JSON(http.StatusOK, envelope{
		Status: "success",
		Token:  signed,
		Data:   gin.H{"user": userToResponse(user)},
	})
}

type updateMeRequest struct {
	UserName        *string `json:"userName"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"passwordConfirm"`
}

func (h *Handler) updateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}
	if req.Password != nil || req.PasswordConfirm != nil {
		c.JSON(http.StatusBadRequest, failBody("This route is not for password updates. Please use /updateMyPassword."))
		return
	}

	user, err := h.users.UpdateMe(c.Request.Context(), principal(c).ID, service.ProfileUpdate{
		UserName: req.UserName,
		Email:    req.Email,
	})
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Status: "success", Data: gin.H{"user": userToResponse(user)}})
}

type restoreRequest struct {
	SeedPhrase string `json:"seedPhrase" binding:"required"`
}

func (h *Handler) restoreWallet(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	user, address, err := h.auth.RestoreWallet(c.Request.Context(), req.SeedPhrase)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{
		Status: "success",
		Data:   gin.H{"email": user.Email, "walletAddress": address},
	})
}

type sendTransactionRequest struct {
	SenderAddress   string `json:"senderAddress" binding:"required"`
	ReceiverAddress string `json:"receiverAddress" binding:"required"`
	EthAmount       string `json:"ethAmount" binding:"required"`
}

func (h *Handler) sendTransaction(c *gin.Context) {
	if h.chain == nil || h.keys == nil {
		c.JSON(http.StatusInternalServerError, errorBody("blockchain client is not configured"))
		return
	}

	var req sendTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	user, err := h.users.GetByWalletAddress(c.Request.Context(), req.SenderAddress)
	if err != nil {
		h.abortError(c, err)
		return
	}

	acct, err := h.keys.Get(c.Request.Context(), user.ID)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			c.JSON(http.StatusNotFound, failBody("no account stored for this wallet address"))
			return
		}
		h.abortError(c, err)
		return
	}

	txHash, err := h.chain.SendNative(c.Request.Context(), acct.PrivateKeyHex, req.ReceiverAddress, req.EthAmount)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{
		Status: "success",
		Data:   gin.H{"transactionHash": txHash},
	})
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.abortError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(&users[i])
	}
	results := len(resp)
	c.JSON(http.StatusOK, envelope{
		Status:  "success",
		Results: &results,
		Data:    gin.H{"users": resp},
	})
}

type transferRequest struct {
	Email  string  `json:"email" binding:"required"`
	Amount float64 `json:"amount" binding:"required"`
}

func (h *Handler) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, failBody(err.Error()))
		return
	}

	sender, err := h.users.Transfer(c.Request.Context(), principal(c).ID, req.Email, req.Amount)
	if err != nil {
		h.abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{
		Status:  "success",
		Message: "Transaction successful!",
		Data:    gin.H{"user": userToResponse(sender)},
	})
}

// envelope is the response shape shared by every endpoint.
type envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func failBody(message string) envelope {
	return envelope{Status: "fail", Message: message}
}

func errorBody(message string) envelope {
	return envelope{Status: "error", Message: message}
}

// UserResponse is the serialized user; the password hash never leaves the server.
type UserResponse struct {
	ID            string  `json:"id"`
	UserName      string  `json:"userName"`
	Email         string  `json:"email"`
	Balance       float64 `json:"balance"`
	WalletAddress string  `json:"walletAddress,omitempty"`
	EmailVerified bool    `json:"emailVerified"`
	CreatedAt     string  `json:"createdAt"`
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		UserName:      user.UserName,
		Email:         user.Email,
		Balance:       user.Balance,
		WalletAddress: user.WalletAddress,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
}

// abortError maps domain failures onto the response envelope.
func (h *Handler) abortError(c *gin.Context, err error) {
	var ve *service.ValidationError

	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, failBody(ve.Message))
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrStaleToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, failBody(err.Error()))
	case errors.Is(err, service.ErrInvalidOrExpiredToken),
		errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrInsufficientBalance):
		c.AbortWithStatusJSON(http.StatusBadRequest, failBody(err.Error()))
	case errors.Is(err, service.ErrNoSuchUser), errors.Is(err, repository.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, failBody(err.Error()))
	case errors.Is(err, service.ErrEmailDelivery):
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(err.Error()))
	default:
		h.logger.WithError(err).Error("unhandled error")
		message := "Something went wrong!"
		if h.devMode {
			message = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(message))
	}
}

func (h *Handler) setSessionCookie(c *gin.Context, signed string) {
	c.SetCookie(sessionCookieName, signed, int(h.cookieTTL.Seconds()), "/", "", !h.devMode, true)
}

// requestBaseURL rebuilds the externally visible base of the user router from
// the inbound request, so emailed links point at the mount that was called.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	prefix := "/users"
	if strings.HasPrefix(c.Request.URL.Path, "/api/v1/users") {
		prefix = "/api/v1/users"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, prefix)
}
