package httpapi

import (
	"bytes"
	"context"
	"image"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/scanner"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary Scan uploaded image
// @Description Decodes a QR or barcode from the image and adds the product to the cart.
// @Tags sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param image formData file true "Photo of the label"
// @Success 200 {object} workflow.Snapshot
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /sessions/{id}/scan [post]
func (s *Server) scanImage(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		writeError(c, domain.NewValidationError(map[string]string{"image": "image file is required"}))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	if _, err := s.scanner.ScanImage(c, s.decoder, sess, f); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// @Summary Live scanning
// @Description WebSocket. The client sends camera frames as binary PNG or JPEG
// @Description messages and receives one JSON event per decoded code.
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 101
// @Failure 404 {object} map[string]string
// @Router /sessions/{id}/scan/stream [get]
func (s *Server) scanStream(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var writeMu sync.Mutex
	emit := func(e scanner.Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(e); err != nil {
			s.log.Warn("websocket write failed", "session_id", sess.ID, "error", err)
		}
	}

	frames := make(chan image.Image, 4)
	src := scanner.NewFrameSource(frames, s.decoder)
	s.scanner.Attach(ctx, src, sess, emit)
	if err := src.Start(ctx); err != nil {
		emit(scanner.Event{Warning: err.Error()})
		return
	}
	defer src.Stop() //nolint:errcheck

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			emit(scanner.Event{Warning: "unreadable frame"})
			continue
		}
		select {
		case frames <- img:
		default:
			// декодер не успевает, кадр пропускаем
		}
	}
}
