package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-ingest/internal/extractor"
	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/models"
	"github.com/insightdelivered/statement-ingest/internal/storage"
)

// Extractor turns an uploaded document into records.
type Extractor interface {
	ExtractDocument(ctx context.Context, data []byte, t layout.StatementType) (*models.StatementInfo, error)
}

// Store is the persistence the API exposes.
type Store interface {
	GetSettings(ctx context.Context, t layout.StatementType) (layout.Settings, error)
	PutSettings(ctx context.Context, t layout.StatementType, s layout.Settings) error
	ListSettings(ctx context.Context) ([]storage.StoredSettings, error)

	SavePersonalData(ctx context.Context, p models.PersonalData) (models.PersonalData, error)
	SaveCategory(ctx context.Context, c models.Category) (models.Category, error)
	GetCategory(ctx context.Context, id int64) (models.Category, error)

	SaveTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	SaveTransactions(ctx context.Context, txns []models.Transaction) ([]models.Transaction, error)
	ListTransactions(ctx context.Context, personalDataID int64) ([]models.Transaction, error)
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Extractor Extractor
	Store     Store
	Logger    *log.Logger
	Version   string
}

// NewApp builds the fiber application with every route registered.
func NewApp(h *Handler, bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "statement-ingest " + h.Version,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          h.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/ping", h.handlePing)
	app.Get("/api/health", h.handleHealth)

	app.Post("/upload-pdf", h.handleUpload)

	app.Post("/personal-data", h.handleSavePersonalData)
	app.Post("/finance-item-category", h.handleSaveCategory)
	app.Post("/finance-item", h.handleSaveFinanceItem)
	app.Get("/finance-items", h.handleListFinanceItems)

	app.Get("/statement-type-settings", h.handleListSettings)
	app.Get("/statement-type-settings/:type", h.handleGetSettings)
	app.Put("/statement-type-settings/:type", h.handlePutSettings)
}

// handleError renders every failure as {"detail": ...}. Only fiber errors
// expose their message; anything else is logged and hidden.
func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	detail := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		detail = fe.Message
	} else {
		h.Logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"detail": detail})
}

func (h *Handler) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "pong",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.Version,
	})
}

func (h *Handler) handleUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("pdf_file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "No file uploaded. Use form field 'pdf_file'.")
	}

	persist, err := formBool(c, "persist")
	if err != nil {
		return err
	}
	debug, err := formBool(c, "debug")
	if err != nil {
		return err
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	info, err := h.Extractor.ExtractDocument(c.UserContext(), data, layout.ParseStatementType(c.FormValue("statement_type")))
	if errors.Is(err, extractor.ErrDocumentRead) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf("PDF extraction failed: %v", err))
	}
	if errors.Is(err, layout.ErrInvalidSettings) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return err
	}

	txns := info.Transactions
	if persist && len(txns) > 0 {
		txns, err = h.Store.SaveTransactions(c.UserContext(), txns)
		if err != nil {
			return err
		}
	}

	h.Logger.Info("Processed upload",
		"file", header.Filename,
		"extraction_id", info.ExtractionID,
		"statement_type", info.StatementType,
		"transactions", len(txns),
		"persisted", persist)

	c.Set("X-Extraction-ID", info.ExtractionID)
	if debug {
		return c.JSON(uploadDebugResponse{
			Transactions: toTransactionsJSON(txns),
			DebugLines:   info.DebugLines,
		})
	}
	return c.JSON(toTransactionsJSON(txns))
}

// uploadDebugResponse adds the per-line scan trace to an upload result.
type uploadDebugResponse struct {
	Transactions []transactionJSON  `json:"transactions"`
	DebugLines   []models.DebugLine `json:"debugLines"`
}

// formBool reads an optional boolean form field; absent means false.
func formBool(c *fiber.Ctx, name string) (bool, error) {
	raw := c.FormValue(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid %s value %q", name, raw))
	}
	return v, nil
}

func (h *Handler) handleSavePersonalData(c *fiber.Ctx) error {
	var body personalDataJSON
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid personal data body")
	}
	p, err := body.toModel()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	saved, err := h.Store.SavePersonalData(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.JSON(fromPersonalData(saved))
}

func (h *Handler) handleSaveCategory(c *fiber.Ctx) error {
	var body models.Category
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid category body")
	}
	if strings.TrimSpace(body.Name) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name is required")
	}
	if body.ParentID != nil {
		if _, err := h.Store.GetCategory(c.UserContext(), *body.ParentID); errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("parent category %d does not exist", *body.ParentID))
		} else if err != nil {
			return err
		}
	}

	saved, err := h.Store.SaveCategory(c.UserContext(), body)
	if err != nil {
		return err
	}
	return c.JSON(saved)
}

func (h *Handler) handleSaveFinanceItem(c *fiber.Ctx) error {
	var body transactionJSON
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid finance item body")
	}
	t, err := body.toModel()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	saved, err := h.Store.SaveTransaction(c.UserContext(), t)
	if err != nil {
		return err
	}
	return c.JSON(fromTransaction(saved))
}

func (h *Handler) handleListFinanceItems(c *fiber.Ctx) error {
	owner := models.DefaultPersonalDataID
	if raw := c.Query("personal_data_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid personal_data_id %q", raw))
		}
		owner = id
	}

	txns, err := h.Store.ListTransactions(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(toTransactionsJSON(txns))
}

func (h *Handler) handleListSettings(c *fiber.Ctx) error {
	all, err := h.Store.ListSettings(c.UserContext())
	if err != nil {
		return err
	}
	if all == nil {
		all = []storage.StoredSettings{}
	}
	return c.JSON(all)
}

func (h *Handler) handleGetSettings(c *fiber.Ctx) error {
	s, err := h.Store.GetSettings(c.UserContext(), layout.ParseStatementType(c.Params("type")))
	if errors.Is(err, layout.ErrInvalidSettings) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(s)
}

func (h *Handler) handlePutSettings(c *fiber.Ctx) error {
	t := layout.ParseStatementType(c.Params("type"))
	if t == "" {
		return fiber.NewError(fiber.StatusBadRequest, "statement type is required")
	}

	s, err := layout.Decode(string(c.Body()))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := h.Store.PutSettings(c.UserContext(), t, s); err != nil {
		return err
	}

	h.Logger.Info("Stored statement settings", "statement_type", t)
	return c.JSON(s)
}

// transactionJSON is the wire form of a record. Amounts travel as JSON
// numbers with two decimals; dates accept a plain day or RFC 3339.
type transactionJSON struct {
	ID             int64       `json:"id,omitempty"`
	RecordDate     string      `json:"record_date"`
	Description    string      `json:"description"`
	Amount         json.Number `json:"amount"`
	CategoryID     int64       `json:"finance_item_category_id"`
	PersonalDataID int64       `json:"personal_data_id"`
}

func fromTransaction(t models.Transaction) transactionJSON {
	return transactionJSON{
		ID:             t.ID,
		RecordDate:     t.RecordDate.Format(time.RFC3339),
		Description:    t.Description,
		Amount:         json.Number(t.Amount.StringFixed(2)),
		CategoryID:     t.CategoryID,
		PersonalDataID: t.PersonalDataID,
	}
}

func toTransactionsJSON(txns []models.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txns))
	for _, t := range txns {
		out = append(out, fromTransaction(t))
	}
	return out
}

func (j transactionJSON) toModel() (models.Transaction, error) {
	date, err := parseDay(j.RecordDate)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid record_date %q", j.RecordDate)
	}
	if strings.TrimSpace(j.Description) == "" {
		return models.Transaction{}, errors.New("description is required")
	}
	amount, err := decimal.NewFromString(j.Amount.String())
	if err != nil {
		return models.Transaction{}, fmt.Errorf("invalid amount %q", j.Amount)
	}

	t := models.Transaction{
		ID:             j.ID,
		RecordDate:     date,
		Description:    j.Description,
		Amount:         amount.Round(2),
		CategoryID:     j.CategoryID,
		PersonalDataID: j.PersonalDataID,
	}
	if t.CategoryID == 0 {
		t.CategoryID = models.DefaultCategoryID
	}
	if t.PersonalDataID == 0 {
		t.PersonalDataID = models.DefaultPersonalDataID
	}
	return t, nil
}

type personalDataJSON struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DOB       string `json:"dob"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	PIN       string `json:"pin,omitempty"`
}

func fromPersonalData(p models.PersonalData) personalDataJSON {
	return personalDataJSON{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		DOB:       p.DOB.Format("2006-01-02"),
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		PIN:       p.PIN,
	}
}

func (j personalDataJSON) toModel() (models.PersonalData, error) {
	if strings.TrimSpace(j.FirstName) == "" || strings.TrimSpace(j.LastName) == "" {
		return models.PersonalData{}, errors.New("first_name and last_name are required")
	}
	dob, err := parseDay(j.DOB)
	if err != nil {
		return models.PersonalData{}, fmt.Errorf("invalid dob %q", j.DOB)
	}
	return models.PersonalData{
		ID:        j.ID,
		FirstName: j.FirstName,
		LastName:  j.LastName,
		DOB:       dob,
		Phone:     j.Phone,
		Email:     j.Email,
		Address:   j.Address,
		PIN:       j.PIN,
	}, nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
