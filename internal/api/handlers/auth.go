package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unitedbyai/droidclaw/internal/api/middleware"
	"github.com/unitedbyai/droidclaw/internal/crypto"
	"github.com/unitedbyai/droidclaw/internal/logger"
	"github.com/unitedbyai/droidclaw/internal/models"
	"github.com/unitedbyai/droidclaw/pkg/types"
)

// tokenTTL is the lifetime of issued bearer tokens.
const tokenTTL = 30 * 24 * time.Hour

// AccountQueries is the subset of queries used by the auth handler.
type AccountQueries interface {
	CreateAccount(ctx context.Context, arg models.CreateAccountParams) error
	CreateAPIKey(ctx context.Context, arg models.CreateAPIKeyParams) error
	GetAPIKey(ctx context.Context, keyID string) (models.APIKey, error)
	RevokeAPIKey(ctx context.Context, keyID string) error
}

type AuthHandler struct {
	queries    AccountQueries
	jwtManager *crypto.JWTManager
	newID      func() string
}

func NewAuthHandler(queries AccountQueries, jwtManager *crypto.JWTManager, newID func() string) *AuthHandler {
	return &AuthHandler{queries: queries, jwtManager: jwtManager, newID: newID}
}

// RegisterAccount creates an account with its first API key.
// POST /v1/accounts
func (h *AuthHandler) RegisterAccount(c *gin.Context) {
	var req types.RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	accountID := h.newID()
	if err := h.queries.CreateAccount(c.Request.Context(), models.CreateAccountParams{
		ID:   accountID,
		Name: req.Name,
	}); err != nil {
		logger.Errorf("[api] create account: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to create account"})
		return
	}

	key, keyID, secretHash, err := crypto.GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to generate api key"})
		return
	}
	if err := h.queries.CreateAPIKey(c.Request.Context(), models.CreateAPIKeyParams{
		KeyID:      keyID,
		AccountID:  accountID,
		SecretHash: secretHash,
		Label:      "default",
	}); err != nil {
		logger.Errorf("[api] create api key: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to store api key"})
		return
	}

	token, err := h.jwtManager.IssueToken(accountID, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, types.RegisterAccountResponse{
		AccountID: accountID,
		APIKey:    key,
		Token:     token,
	})
}

// CreateToken exchanges an API key for a bearer token.
// POST /v1/auth/token
func (h *AuthHandler) CreateToken(c *gin.Context) {
	var req types.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	keyID, secret, err := crypto.ParseAPIKey(req.APIKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid api key"})
		return
	}
	key, err := h.queries.GetAPIKey(c.Request.Context(), keyID)
	if err != nil || !crypto.VerifyAPIKeySecret(key.SecretHash, secret) {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "invalid api key"})
		return
	}

	token, err := h.jwtManager.IssueToken(key.AccountID, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, types.TokenResponse{AccountID: key.AccountID, Token: token})
}

// CreateAPIKey mints an additional API key for the calling account.
// POST /v1/keys
func (h *AuthHandler) CreateAPIKey(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req types.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}

	key, keyID, secretHash, err := crypto.GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to generate api key"})
		return
	}
	if err := h.queries.CreateAPIKey(c.Request.Context(), models.CreateAPIKeyParams{
		KeyID:      keyID,
		AccountID:  userID,
		SecretHash: secretHash,
		Label:      req.Label,
	}); err != nil {
		logger.Errorf("[api] create api key: %v", err)
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to store api key"})
		return
	}

	c.JSON(http.StatusCreated, types.CreateAPIKeyResponse{KeyID: keyID, APIKey: key})
}

// RevokeAPIKey revokes a key owned by the calling account.
// DELETE /v1/keys/:keyId
func (h *AuthHandler) RevokeAPIKey(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	keyID := c.Param("keyId")

	key, err := h.queries.GetAPIKey(c.Request.Context(), keyID)
	if err != nil || key.AccountID != userID {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "key not found"})
		return
	}
	if err := h.queries.RevokeAPIKey(c.Request.Context(), keyID); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to revoke key"})
		return
	}

	c.JSON(http.StatusOK, types.SuccessResponse{Success: true})
}
