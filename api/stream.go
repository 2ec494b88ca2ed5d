package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// streamBoard pushes the full board over SSE whenever the notifier signals a
// change, with a periodic refresh as a safety net against missed signals.
func streamBoard(store Storage, notifier Notifier, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID := c.Param("boardId")

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		var updates <-chan struct{}
		if notifier != nil {
			updates = notifier.Updates(boardID)
			defer notifier.Release(boardID, updates)
		}
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			items, err := store.FetchItems(ctx, boardID)
			if err != nil {
				logger.WithField("board", boardID).Errorf("stream fetch: %v", err)
			} else {
				data, _ := json.Marshal(itemsResponse{Items: items})
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			case <-updates:
			}
		}
	}
}
