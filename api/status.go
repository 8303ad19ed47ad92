package api

import (
	"net/http"

	"github.com/Domenick1991/seatledger/internal/replicator"
	"github.com/gin-gonic/gin"
)

type StatusSource interface {
	Status() replicator.Status
}

type StatusHandler struct {
	source StatusSource
}

func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

func (h *StatusHandler) Register(router *gin.RouterGroup) {
	router.GET("/indexer/status", h.status)
	router.GET("/health", h.health)
}

func (h *StatusHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Status())
}

// health reports degraded while the mirror is not following the feed but
// stays 200 so reads keep being served.
func (h *StatusHandler) health(c *gin.Context) {
	st := h.source.Status()
	status := "ok"
	if st.State != replicator.StateLive {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "replicator": st.State, "offset": st.Offset})
}
