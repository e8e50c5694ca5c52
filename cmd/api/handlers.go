package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/auth"
	"rollcall/internal/checkin"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/qr"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/score"
	"rollcall/internal/token"
)

type api struct {
	cfg        config.App
	zone       clock.Zone
	roster     *roster.Repository
	tokens     *token.Repository
	issuer     *token.Issuer
	processor  *checkin.Processor
	attendance *checkin.Repository
	scores     *score.Aggregator
	queue      queue.Queue
}

// redeemURL is what gets encoded into the QR image; scanners post the whole
// thing to /v1/scan and the token is extracted from the path.
func (a *api) redeemURL(tok string) string {
	return fmt.Sprintf("%s/attendance/confirm/%s", a.cfg.BaseURL, tok)
}

// respondErr maps the check-in error taxonomy onto HTTP. Everything except
// unavailable is a terminal, request-scoped outcome; only unavailable is
// worth retrying.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, checkin.ErrTokenInvalid):
		c.JSON(http.StatusGone, gin.H{"code": "token_invalid", "error": "token expired or unknown"})
	case errors.Is(err, checkin.ErrTokenAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"code": "token_used", "error": "token already redeemed"})
	case errors.Is(err, checkin.ErrAlreadyCheckedIn):
		c.JSON(http.StatusConflict, gin.H{"code": "already_checked_in", "error": "attendance already recorded today"})
	case errors.Is(err, checkin.ErrNotEnrolled):
		// A legitimate outcome for the student, not a fault; rendered with
		// its own code so clients show it differently.
		c.JSON(http.StatusForbidden, gin.H{"code": "not_enrolled", "error": "you are not a member of this classroom"})
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "not found"})
	default:
		slog.Error("request failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "unavailable", "error": "temporarily unavailable"})
	}
}

func classroomID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid classroom id"})
		return 0, false
	}
	return id, true
}

func (a *api) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := a.roster.Lookup(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		respondErr(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := auth.Issue(u.ID, u.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
		"role":          u.Role,
	})
}

// issueToken keeps a live token available for the classroom display. Polling
// without force reuses the current token until its TTL lapses.
func (a *api) issueToken(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	force := c.Query("force") == "true" || c.Query("force") == "1"
	grace := 0
	if v := c.Query("grace_minutes"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			grace = parsed
		}
	}

	t, err := a.issuer.Issue(c.Request.Context(), id, c.Query("date"), grace, force)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":          t.Token,
		"url":            a.redeemURL(t.Token),
		"ttl_seconds":    int(a.issuer.TTL().Seconds()),
		"late_cutoff_at": t.LateCutoffAt,
	})
}

// startSession opens a new attendance window with its own date and grace
// period, always minting fresh token metadata.
func (a *api) startSession(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	var req struct {
		Date         string `json:"date"`
		GraceMinutes int    `json:"grace_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.GraceMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grace_minutes must not be negative"})
		return
	}

	t, err := a.issuer.IssueForSession(c.Request.Context(), id, req.Date, req.GraceMinutes)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":          t.Token,
		"url":            a.redeemURL(t.Token),
		"ttl_seconds":    int(a.issuer.TTL().Seconds()),
		"grace_minutes":  t.GraceMinutes,
		"late_cutoff_at": t.LateCutoffAt,
	})
}

func (a *api) tokenStatus(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	tok := c.Query("token")
	if tok == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token query parameter required"})
		return
	}
	st, err := a.tokens.StatusFor(c.Request.Context(), id, tok)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// qrImage renders the classroom's current token as a PNG for the projector.
func (a *api) qrImage(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	t, err := a.issuer.Issue(c.Request.Context(), id, "", 0, false)
	if err != nil {
		respondErr(c, err)
		return
	}
	png, err := qr.PNG(a.redeemURL(t.Token), qr.DefaultSize)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// scan validates scanned text without consuming the token; the student then
// confirms explicitly via /v1/checkins.
func (a *api) scan(c *gin.Context) {
	var req struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := a.processor.Scan(c.Request.Context(), req.Data)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":        t.Token,
		"classroom_id": t.ClassroomID,
		"confirm_url":  a.cfg.BaseURL + "/v1/checkins",
	})
}

// confirm is the exactly-once redemption.
func (a *api) confirm(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	studentID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
		return
	}

	res, err := a.processor.Confirm(c.Request.Context(), req.Token, studentID)
	if err != nil {
		respondErr(c, err)
		return
	}

	body := strconv.FormatInt(res.ClassroomID, 10)
	if perr := a.queue.Publish(c.Request.Context(), queue.Message{Type: queue.MsgCheckin, Body: []byte(body)}); perr != nil {
		slog.Warn("queue publish failed", "error", perr)
	}

	c.JSON(http.StatusOK, gin.H{"status": res.Status, "date": res.Date})
}

func (a *api) classroomScores(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	rep, err := a.scores.Classroom(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (a *api) studentScore(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	studentID, err := strconv.ParseInt(c.Param("studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid student id"})
		return
	}

	// Students may only read their own score.
	claims, _ := auth.ClaimsFrom(c)
	if claims.Role == auth.RoleStudent {
		if self, err := claims.UserID(); err != nil || self != studentID {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}

	stats, err := a.scores.Student(c.Request.Context(), id, studentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *api) attendanceSheet(c *gin.Context) {
	id, ok := classroomID(c)
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		date = a.zone.Date(a.zone.Now())
	}
	entries, err := a.attendance.Sheet(c.Request.Context(), id, date)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "students": entries})
}
