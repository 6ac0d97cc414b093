package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"app/internal/channel"
	"app/internal/domain/model"
	repo "app/internal/repository"
)

// 両チャネルへの出品ワークフロー。
// ローカルの在庫と対応表を先に確定してから、Square → eBay の順で押す。
type ListingUsecase struct {
	tx       repo.TransactionManager
	mappings repo.MappingRepository
	square   channel.SquareClient
	ebay     channel.EbayClient
	logger   *slog.Logger
}

func NewListingUsecase(
	tx repo.TransactionManager,
	mappings repo.MappingRepository,
	square channel.SquareClient,
	ebay channel.EbayClient,
	logger *slog.Logger,
) *ListingUsecase {
	return &ListingUsecase{tx: tx, mappings: mappings, square: square, ebay: ebay, logger: logger}
}

type UpsertListingInput struct {
	SKU         string
	Title       string
	Description string
	PricePence  int64
	Quantity    int64

	SquareCategory string
	EbayCategoryID string
	EbayCondition  string
}

type UpsertListingOutput struct {
	SKU    string `json:"sku"`
	OnHand int64  `json:"on_hand"`

	SquareItemID      string `json:"square_item_id"`
	SquareVariationID string `json:"square_variation_id"`
	EbayOfferID       string `json:"ebay_offer_id"`
	EbayListingID     string `json:"ebay_listing_id"`
}

// eBayの数値condition IDを列挙値へ寄せる
var conditionIDToEnum = map[int64]string{
	1000: "NEW",
	1500: "NEW_OTHER",
	1750: "NEW_WITH_DEFECTS",
	2000: "CERTIFIED_REFURBISHED",
	2500: "SELLER_REFURBISHED",
	3000: "USED_EXCELLENT",
	4000: "USED_VERY_GOOD",
	5000: "USED_GOOD",
	6000: "USED_ACCEPTABLE",
	7000: "FOR_PARTS_OR_NOT_WORKING",
}

func normalizeCondition(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", NewHTTPError(http.StatusBadRequest, "condition is required")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		enum, ok := conditionIDToEnum[id]
		if !ok {
			return "", NewHTTPError(http.StatusBadRequest, "unsupported condition id")
		}
		return enum, nil
	}
	return s, nil
}

func (u *ListingUsecase) UpsertBoth(ctx context.Context, in UpsertListingInput) (UpsertListingOutput, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return UpsertListingOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sku")
	}
	if in.Quantity < 0 {
		return UpsertListingOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if in.PricePence <= 0 {
		return UpsertListingOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}

	condition, err := normalizeCondition(in.EbayCondition)
	if err != nil {
		return UpsertListingOutput{}, err
	}

	// 1) ローカルの在庫と対応表を確定
	var pm model.ProductMap
	var onHand int64
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		rec, err := r.Stocks().GetOrCreateForUpdate(ctx, sku)
		if err != nil {
			return err
		}
		rec.OnHand = in.Quantity
		if err := r.Stocks().Save(ctx, rec); err != nil {
			return err
		}
		onHand = rec.OnHand

		pm, err = r.Mappings().FindBySKU(ctx, sku)
		if err == repo.ErrNotFound {
			pm = model.ProductMap{SKU: sku}
		} else if err != nil {
			return err
		}
		pm.Name = in.Title
		return r.Mappings().Save(ctx, pm)
	})
	if err != nil {
		return UpsertListingOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 2) Squareへ
	squareRes, err := u.square.UpsertItem(ctx, channel.SquareListingInput{
		SKU:         sku,
		Name:        in.Title,
		Description: in.Description,
		PricePence:  in.PricePence,
		Category:    in.SquareCategory,
	})
	if err != nil {
		u.logger.Error("square upsert failed", "sku", sku, "error", err)
		return UpsertListingOutput{}, NewHTTPError(http.StatusBadGateway, "square upsert failed")
	}
	if err := u.square.SetStockExact(ctx, squareRes.VariationID, onHand); err != nil {
		u.logger.Error("square stock set failed", "sku", sku, "error", err)
		return UpsertListingOutput{}, NewHTTPError(http.StatusBadGateway, "square stock set failed")
	}

	pm.SquareItemID = squareRes.ItemID
	pm.SquareVariationID = squareRes.VariationID
	if err := u.mappings.Save(ctx, pm); err != nil {
		return UpsertListingOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 3) eBayへ（同じDB数量を使う）
	ebayRes, err := u.ebay.UpsertListing(ctx, channel.EbayListingInput{
		SKU:             sku,
		Title:           in.Title,
		Description:     in.Description,
		CategoryID:      in.EbayCategoryID,
		Condition:       condition,
		PricePence:      in.PricePence,
		Quantity:        onHand,
		ExistingOfferID: pm.EbayOfferID,
	})
	if err != nil {
		u.logger.Error("ebay upsert failed", "sku", sku, "error", err)
		return UpsertListingOutput{}, NewHTTPError(http.StatusBadGateway, "ebay upsert failed")
	}

	pm.EbayInventorySKU = ebayRes.InventorySKU
	pm.EbayOfferID = ebayRes.OfferID
	pm.EbayListingID = ebayRes.ListingID
	if err := u.mappings.Save(ctx, pm); err != nil {
		return UpsertListingOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return UpsertListingOutput{
		SKU:               sku,
		OnHand:            onHand,
		SquareItemID:      pm.SquareItemID,
		SquareVariationID: pm.SquareVariationID,
		EbayOfferID:       pm.EbayOfferID,
		EbayListingID:     pm.EbayListingID,
	}, nil
}
