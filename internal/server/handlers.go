package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type handlers struct {
	cfg       Config
	auth      *AuthService
	donations *DonationService
	logger    *zap.Logger
}

// fail writes err as {"error": message}. Internal causes are logged and
// never sent to the client.
func (h *handlers) fail(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request error", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func (h *handlers) PlatformInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Platform)
}

func (h *handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) WalletNonce(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	n, err := h.auth.IssueNonce(c.Request.Context(), req.WalletAddress)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": n.Nonce, "message": n.Message})
}

func (h *handlers) WalletVerify(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"wallet_address"`
		Signature     string `json:"signature"`
		Nonce         string `json:"nonce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, token, expires, err := h.auth.VerifyWallet(c.Request.Context(), req.WalletAddress, req.Signature, req.Nonce)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(time.Until(expires).Seconds()), "/", "", h.cfg.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

type donationPayload struct {
	ID          string `json:"id"`
	ProjectID   int64  `json:"project_id"`
	AmountSOL   string `json:"amount_sol"`
	PlatformFee string `json:"platform_fee"`
	DonorWallet string `json:"donor_wallet"`
	TxSignature string `json:"tx_signature"`
	Status      string `json:"status"`
}

type projectPayload struct {
	RaisedSOL       string  `json:"raised_sol"`
	ProgressPercent float64 `json:"progress_percent"`
	DonationCount   int64   `json:"donation_count"`
}

func (h *handlers) VerifyDonation(c *gin.Context) {
	var req VerifyDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var userWallet string
	if claims := sessionFrom(c); claims != nil {
		userWallet = claims.Subject
	}

	res, err := h.donations.Verify(c.Request.Context(), req, userWallet)
	if err != nil {
		h.fail(c, err)
		return
	}

	d, p := res.Donation, res.Project
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"already_processed": res.AlreadyProcessed,
		"donation": donationPayload{
			ID:          d.ID,
			ProjectID:   d.ProjectID,
			AmountSOL:   d.AmountSOL.String(),
			PlatformFee: d.PlatformFee.String(),
			DonorWallet: d.DonorWallet,
			TxSignature: d.TxSignature,
			Status:      string(d.Status),
		},
		"project": projectPayload{
			RaisedSOL:       p.RaisedSOL.String(),
			ProgressPercent: p.ProgressPercent(),
			DonationCount:   p.DonationCount,
		},
	})
}

func (h *handlers) Stats(c *gin.Context) {
	stats, err := h.donations.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_donations":  stats.TotalDonations,
		"total_raised_sol": stats.TotalSOL.String(),
		"total_projects":   stats.TotalProjects,
	})
}
