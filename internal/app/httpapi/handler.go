// Package httpapi exposes the coin engine over HTTP: session lifecycle,
// interaction rewards, the withdrawal gate, profile and catalog surfaces,
// and an admin review group behind a shared API key.
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/filcuan/coin-engine/internal/app"
	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
	"github.com/filcuan/coin-engine/internal/app/metrics"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/profile"
	"github.com/filcuan/coin-engine/internal/app/services/rewards"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/services/wallet"
	"github.com/filcuan/coin-engine/pkg/logger"
)

// Config carries the handler's own settings; everything behavioral lives in
// the application services.
type Config struct {
	JWTSecret   string
	AdminAPIKey string
	AuditPath   string
}

type handler struct {
	app   *app.Application
	cfg   Config
	log   *logger.Logger
	limit *sessionLimiter
	audit *auditLog
}

// Register mounts every route on the gin engine.
func Register(r *gin.Engine, application *app.Application, cfg Config, log *logger.Logger) error {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(cfg.AuditPath)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}

	h := &handler{
		app:   application,
		cfg:   cfg,
		log:   log,
		limit: newSessionLimiter(5, 10),
		audit: newAuditLog(0, sink),
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api", h.identityMiddleware())
	{
		api.POST("/sessions", h.openSession)
		api.GET("/sessions/:id", h.sessionState)
		api.DELETE("/sessions/:id", h.closeSession)
		api.GET("/sessions/:id/feed", h.sessionFeed)
		api.GET("/sessions/:id/progress", h.sessionProgress)
		api.GET("/sessions/:id/stream", h.sessionStream)
		api.POST("/sessions/:id/signin", h.signIn)
		api.POST("/sessions/:id/signout", h.signOut)
		api.POST("/sessions/:id/interactions", h.limit.middleware("id"), h.interact)
		api.POST("/sessions/:id/withdrawals", h.withdraw)

		api.POST("/profiles", h.registerProfile)
		api.GET("/profiles/me", h.getProfile)
		api.PATCH("/profiles/me", h.updateProfile)

		api.GET("/items", h.listItems)
		api.GET("/themes", h.listThemes)
	}

	admin := r.Group("/api/admin", h.adminMiddleware(), h.recordAudit())
	{
		admin.POST("/items", h.saveItem)
		admin.DELETE("/items/:id", h.deleteItem)
		admin.POST("/themes", h.saveTheme)
		admin.DELETE("/themes/:id", h.deleteTheme)
		admin.GET("/withdrawals", h.listWithdrawals)
		admin.PATCH("/withdrawals/:id", h.reviewWithdrawal)
		admin.GET("/audit", h.listAudit)
	}

	return nil
}

// recordAudit captures every admin mutation after the handler runs.
func (h *handler) recordAudit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet {
			return
		}
		h.audit.add(auditEntry{
			Time:       time.Now().UTC(),
			Path:       c.FullPath(),
			Method:     c.Request.Method,
			Status:     c.Writer.Status(),
			TargetID:   c.Param("id"),
			RemoteAddr: c.ClientIP(),
		})
	}
}

// identity loads the visitor identity for the request's bearer subject.
// Anonymous requests yield the zero identity with no store round trip.
func (h *handler) identity(c *gin.Context) (visitor.Identity, error) {
	id := visitorID(c)
	if id == "" {
		return visitor.Identity{}, nil
	}
	p, err := h.app.Profiles.Get(c.Request.Context(), id)
	if err != nil {
		return visitor.Identity{}, fmt.Errorf("load profile: %w", err)
	}
	return p.Identity(), nil
}

func (h *handler) writeError(c *gin.Context, err error) {
	var inconsistent *wallet.InconsistentStateError

	switch {
	case errors.Is(err, ledger.ErrIdentityRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":    err.Error(),
			"code":     "identity_required",
			"redirect": "/auth",
		})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrAlreadyAuthenticated),
		errors.Is(err, rewards.ErrItemUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrWindowClosed),
		errors.Is(err, wallet.ErrBelowMinimum):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, rewards.ErrInvalidKind),
		errors.Is(err, profile.ErrInvalidInput),
		errors.Is(err, wallet.ErrInvalidStatus),
		errors.Is(err, wallet.ErrNotPending):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &inconsistent):
		// The request was recorded; the client must not retry blindly.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      err.Error(),
			"code":       "inconsistent_state",
			"request_id": inconsistent.RequestID,
		})
	default:
		// Anything unclassified is a store or transport failure; the
		// operation aborted without side effects and can be retried.
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "store_unavailable"})
	}
}

type sessionView struct {
	SessionID     string  `json:"session_id"`
	Authenticated bool    `json:"authenticated"`
	Balance       int64   `json:"balance"`
	Progress      float64 `json:"progress"`
	FeedSize      int     `json:"feed_size"`
}

func (h *handler) sessionView(c *gin.Context, sess *session.Session) (sessionView, error) {
	balance, err := h.app.Sessions.Balance(c.Request.Context(), sess.ID())
	if err != nil {
		return sessionView{}, err
	}
	return sessionView{
		SessionID:     sess.ID(),
		Authenticated: sess.Authenticated(),
		Balance:       balance,
		Progress:      h.app.Accrual.Progress(sess),
		FeedSize:      sess.FeedSize(),
	}, nil
}

func (h *handler) openSession(c *gin.Context) {
	deviceID := c.GetHeader(headerDeviceID)
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Device-ID header is required"})
		return
	}

	identity, err := h.identity(c)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.app.Sessions.Open(c.Request.Context(), deviceID, identity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.sessionView(c, sess)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id":    view.SessionID,
		"authenticated": view.Authenticated,
		"balance":       view.Balance,
		"feed":          itemViews(sess.Feed()),
	})
}

func (h *handler) sessionState(c *gin.Context) {
	sess, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.sessionView(c, sess)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) closeSession(c *gin.Context) {
	id := c.Param("id")
	h.app.Sessions.Close(id)
	h.limit.forget(id)
	c.Status(http.StatusNoContent)
}

type itemView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	MediaURL    string    `json:"media_url"`
	ThemeID     string    `json:"theme_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func itemViews(items []content.Item) []itemView {
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		out = append(out, itemView{
			ID:          item.ID,
			Title:       item.Title,
			MediaURL:    item.MediaURL,
			ThemeID:     item.ThemeID,
			Description: item.Description,
			Tags:        item.Tags,
			CreatedAt:   item.CreatedAt,
		})
	}
	return out
}

func (h *handler) sessionFeed(c *gin.Context) {
	sess, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feed": itemViews(sess.Feed())})
}

func (h *handler) sessionProgress(c *gin.Context) {
	sess, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.sessionView(c, sess)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"progress":  view.Progress,
		"balance":   view.Balance,
		"feed_size": view.FeedSize,
	})
}

func (h *handler) signIn(c *gin.Context) {
	identity, err := h.identity(c)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if identity.Anonymous() {
		h.writeError(c, ledger.ErrIdentityRequired)
		return
	}

	balance, err := h.app.Sessions.SignIn(c.Request.Context(), c.Param("id"), identity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance, "authenticated": true})
}

func (h *handler) signOut(c *gin.Context) {
	if err := h.app.Sessions.SignOut(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

func (h *handler) interact(c *gin.Context) {
	var req struct {
		ItemID string `json:"item_id"`
		Kind   string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.app.Rewards.Interact(c.Request.Context(), sess, req.ItemID, content.InteractionKind(req.Kind))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item_id":   result.Item.ID,
		"reward":    result.Reward,
		"balance":   result.Balance,
		"feed_size": result.FeedSize,
	})
}

type requestView struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Username  string    `json:"username"`
	AmountIDR int64     `json:"amount_idr"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toRequestView(req withdrawal.Request) requestView {
	return requestView{
		ID:        req.ID,
		ProfileID: req.ProfileID,
		Username:  req.Username,
		AmountIDR: req.AmountIDR,
		Method:    string(req.Method),
		Status:    string(req.Status),
		CreatedAt: req.CreatedAt,
	}
}

func (h *handler) withdraw(c *gin.Context) {
	sess, err := h.app.Sessions.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	req, err := h.app.Wallet.Withdraw(c.Request.Context(), sess)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": toRequestView(req), "balance": 0})
}

type profileView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Coins       int64     `json:"coins"`
	JoinedDate  time.Time `json:"joined_date"`
}

func toProfileView(p visitor.Profile) profileView {
	return profileView{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Coins:       p.Coins,
		JoinedDate:  p.JoinedDate,
	}
}

func (h *handler) registerProfile(c *gin.Context) {
	id := visitorID(c)
	if id == "" {
		h.writeError(c, ledger.ErrIdentityRequired)
		return
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.app.Profiles.Register(c.Request.Context(), id, req.Username)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProfileView(p))
}

func (h *handler) getProfile(c *gin.Context) {
	id := visitorID(c)
	if id == "" {
		h.writeError(c, ledger.ErrIdentityRequired)
		return
	}
	p, err := h.app.Profiles.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toProfileView(p))
}

func (h *handler) updateProfile(c *gin.Context) {
	id := visitorID(c)
	if id == "" {
		h.writeError(c, ledger.ErrIdentityRequired)
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		PhotoURL    *string `json:"photo_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.app.Profiles.UpdateDisplay(c.Request.Context(), id, req.DisplayName, req.PhotoURL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfileView(p))
}

func (h *handler) listItems(c *gin.Context) {
	items, err := h.app.Catalog.ListItems(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if theme := c.Query("theme_id"); theme != "" {
		filtered := make([]content.Item, 0, len(items))
		for _, item := range items {
			if item.ThemeID == theme {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	c.JSON(http.StatusOK, gin.H{"items": itemViews(items)})
}

func (h *handler) listThemes(c *gin.Context) {
	themes, err := h.app.Catalog.ListThemes(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"themes": themes})
}

func (h *handler) saveItem(c *gin.Context) {
	var req struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		MediaURL    string   `json:"media_url"`
		ThemeID     string   `json:"theme_id"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.app.Catalog.SaveItem(c.Request.Context(), content.Item{
		ID:          req.ID,
		Title:       req.Title,
		MediaURL:    req.MediaURL,
		ThemeID:     req.ThemeID,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, itemViews([]content.Item{item})[0])
}

func (h *handler) deleteItem(c *gin.Context) {
	if err := h.app.Catalog.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) saveTheme(c *gin.Context) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	theme, err := h.app.Catalog.SaveTheme(c.Request.Context(), content.Theme{ID: req.ID, Name: req.Name})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, theme)
}

func (h *handler) deleteTheme(c *gin.Context) {
	if err := h.app.Catalog.DeleteTheme(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) listWithdrawals(c *gin.Context) {
	reqs, err := h.app.Wallet.ListRequests(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	views := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, toRequestView(req))
	}
	c.JSON(http.StatusOK, gin.H{"requests": views})
}

func (h *handler) reviewWithdrawal(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.app.Wallet.Review(c.Request.Context(), c.Param("id"), withdrawal.Status(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestView(result))
}

func (h *handler) listAudit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.audit.listLimit(0)})
}
