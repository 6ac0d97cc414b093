package handler

import (
	"context"
	"net/http"

	"app/internal/config"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// ListingUpsertRequest は出品作成/更新の入力です。
type ListingUpsertRequest struct {
	SKU            string `json:"sku"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	PricePence     int64  `json:"price_pence"`
	Quantity       int64  `json:"quantity"`
	SquareCategory string `json:"square_category"`
	EbayCategoryID string `json:"ebay_category_id"`
	EbayCondition  string `json:"ebay_condition"`
}

// /ops 配下の運用APIをまとめる
type OpsHandler struct {
	listing  *usecase.ListingUsecase
	products *usecase.ProductUsecase
	resync   func(ctx context.Context) error
}

// DI
func NewOpsHandler(listing *usecase.ListingUsecase, products *usecase.ProductUsecase, resync func(ctx context.Context) error) *OpsHandler {
	return &OpsHandler{listing: listing, products: products, resync: resync}
}

// opsを登録
func (h *OpsHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	ops := e.Group("/ops")

	ops.Use(middleware.OpsAuth(cfg))

	ops.GET("/products", h.listProducts)
	ops.POST("/listings", h.upsertListing)
	ops.POST("/resync", h.resyncAll)
}

func (h *OpsHandler) listProducts(c echo.Context) error {
	outs, err := h.products.ListProducts(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, outs)
}

func (h *OpsHandler) upsertListing(c echo.Context) error {
	var req ListingUpsertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.listing.UpsertBoth(
		c.Request().Context(),
		usecase.UpsertListingInput{
			SKU:            req.SKU,
			Title:          req.Title,
			Description:    req.Description,
			PricePence:     req.PricePence,
			Quantity:       req.Quantity,
			SquareCategory: req.SquareCategory,
			EbayCategoryID: req.EbayCategoryID,
			EbayCondition:  req.EbayCondition,
		},
	)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// 伝搬に失敗したままのSKUを拾い直すための全件再同期
func (h *OpsHandler) resyncAll(c echo.Context) error {
	if err := h.resync(c.Request().Context()); err != nil {
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: "resync incomplete"})
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "resynced"})
}
