package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/xlsx"
)

// maxImportSize caps uploaded workbooks at 5 MiB.
const maxImportSize = 5 << 20

// HistoryHandler serves trade history export and import endpoints.
type HistoryHandler struct {
	ledger *ledger.Ledger
	cfg    *config.Config
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(l *ledger.Ledger, cfg *config.Config) *HistoryHandler {
	return &HistoryHandler{ledger: l, cfg: cfg}
}

// Export godoc
// GET /api/positions/export
// Streams the closed position history as an Excel workbook.
func (h *HistoryHandler) Export(c *gin.Context) {
	filename := fmt.Sprintf("positions-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := xlsx.Export(c.Writer, h.ledger.ClosedPositions(), h.ledger.PayoutRate()); err != nil {
		// Headers are already written; all we can do is abort the stream.
		c.Abort()
		return
	}
}

// Import godoc
// POST /api/positions/import (multipart form, field "file")
// Merges closed positions from an uploaded workbook into the history.
// Positions whose ID is already present are skipped.
func (h *HistoryHandler) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "multipart field 'file' is required")
		return
	}
	if fileHeader.Size > maxImportSize {
		respondError(c, http.StatusRequestEntityTooLarge, "ERR_FILE_TOO_LARGE", "workbook exceeds the 5 MiB limit")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "could not open uploaded file")
		return
	}
	defer f.Close()

	positions, err := xlsx.Import(f, h.cfg.Trading.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrImportFormat) {
			respondError(c, http.StatusUnprocessableEntity, "ERR_IMPORT_FORMAT", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not parse workbook")
		return
	}

	added := h.ledger.ImportClosed(c.Request.Context(), positions)
	respondSuccess(c, http.StatusOK, gin.H{
		"parsed":   len(positions),
		"imported": added,
		"skipped":  len(positions) - added,
	})
}
