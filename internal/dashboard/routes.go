package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/carpool/internal/cache"
)

// messageView is the JSON shape of a cached chat message.
type messageView struct {
	ID         string    `json:"id"`
	Pending    bool      `json:"pending"`
	Content    string    `json:"content"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	SentAt     time.Time `json:"sent_at"`
}

func registerRoutes(r *gin.Engine, store Source, broker *Broker) {
	r.GET("/healthz", func(c *gin.Context) {
		h := gin.H{"status": "ok"}
		if broker != nil {
			h["subscribers"] = broker.Subscribers()
		}
		c.JSON(http.StatusOK, h)
	})

	api := r.Group("/api")
	api.GET("/trip", handleTrip(store))
	api.GET("/chats/:id/messages", handleMessages(store))
	api.GET("/events", handleSSE(broker))
}

func handleTrip(store Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, ok, err := store.CurrentTrip()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no current trip"})
			return
		}
		c.JSON(http.StatusOK, trip)
	}
}

func handleMessages(store Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || chatID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}
		msgs, err := store.Messages(chatID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		views := make([]messageView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, messageView{
				ID:         m.ID,
				Pending:    m.Kind == cache.KindPending,
				Content:    m.Content,
				AuthorID:   m.AuthorID,
				AuthorName: m.AuthorName,
				SentAt:     m.SentAt,
			})
		}
		c.JSON(http.StatusOK, views)
	}
}
