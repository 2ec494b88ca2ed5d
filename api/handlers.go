// Package api exposes the board over HTTP: snapshot reads, the move
// endpoint implementing the persistence gateway contract, and an SSE stream
// of live board updates.
package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, notifier Notifier, deduper Deduper, logger *log.Logger) {
	e.GET("/api/boards/:boardId/items", getItems(store))
	e.POST("/api/boards/:boardId/moves", postMove(store, deduper, logger))
	e.GET("/api/boards/:boardId/stream", streamBoard(store, notifier, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getItems(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		boardID := c.Param("boardId")
		items, err := store.FetchItems(ctx, boardID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, itemsResponse{Items: items})
	}
}

func postMove(store Storage, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		boardID := c.Param("boardId")
		metrics, spanCtx := newMoveRequestMetrics(ctx, logger, boardID)
		if spanCtx != nil {
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		lr := io.LimitReader(c.Request().Body, moveRequestMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req domain.MoveRequest
		if decodeErr := dec.Decode(&req); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, moveResponse{Error: "invalid body"})
			return err
		}
		req.BoardID = boardID
		if req.ItemID == "" || req.LaneID == "" {
			metrics.SetErrorStage("validate")
			err = c.JSON(http.StatusBadRequest, moveResponse{Error: "itemId and laneId are required"})
			return err
		}
		metrics.SetItem(req.ItemID)

		// A retried request quoting an already-confirmed token would fail
		// the version check against its own move; replay the stored result
		// instead. Lookup failures fall through to storage.
		if deduper != nil && req.Token != "" {
			if res, found, lookupErr := deduper.Lookup(ctx, boardID, req.Token); lookupErr == nil && found {
				err = c.JSON(http.StatusOK, moveResponse{LaneID: res.LaneID, Rank: res.Rank, Version: res.Version})
				return err
			}
		}

		moveStart := time.Now()
		res, moveErr := store.MoveItem(ctx, req)
		metrics.ObserveMove(time.Since(moveStart))
		if moveErr != nil {
			switch {
			case errors.Is(moveErr, domain.ErrVersionConflict):
				metrics.SetErrorStage("conflict")
				err = c.JSON(http.StatusConflict, moveResponse{Error: moveErr.Error()})
			case errors.Is(moveErr, domain.ErrItemNotFound):
				metrics.SetErrorStage("not_found")
				err = c.JSON(http.StatusNotFound, moveResponse{Error: moveErr.Error()})
			default:
				metrics.SetErrorStage("storage")
				c.Logger().Error(moveErr)
				err = c.JSON(http.StatusInternalServerError, moveResponse{Error: moveErr.Error()})
			}
			return err
		}

		if deduper != nil && req.Token != "" {
			if recordErr := deduper.Record(ctx, boardID, req.Token, res); recordErr != nil {
				logger.WithField("token", req.Token).Warnf("record move result: %v", recordErr)
			}
		}

		err = c.JSON(http.StatusOK, moveResponse{LaneID: res.LaneID, Rank: res.Rank, Version: res.Version})
		return err
	}
}
