package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"app/internal/channel"
	"app/internal/domain/model"
	"app/internal/notification"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// ---- mocks ----

type mockStockRepo struct{ mock.Mock }

func (m *mockStockRepo) FindBySKU(ctx context.Context, sku string) (model.StockRecord, error) {
	args := m.Called(ctx, sku)
	return args.Get(0).(model.StockRecord), args.Error(1)
}

func (m *mockStockRepo) GetOrCreateForUpdate(ctx context.Context, sku string) (model.StockRecord, error) {
	args := m.Called(ctx, sku)
	return args.Get(0).(model.StockRecord), args.Error(1)
}

func (m *mockStockRepo) Save(ctx context.Context, rec model.StockRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockStockRepo) ListAll(ctx context.Context) ([]model.StockRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.StockRecord), args.Error(1)
}

type mockMappingRepo struct{ mock.Mock }

func (m *mockMappingRepo) FindBySKU(ctx context.Context, sku string) (model.ProductMap, error) {
	args := m.Called(ctx, sku)
	return args.Get(0).(model.ProductMap), args.Error(1)
}

func (m *mockMappingRepo) FindBySquareVariationID(ctx context.Context, variationID string) (model.ProductMap, error) {
	args := m.Called(ctx, variationID)
	return args.Get(0).(model.ProductMap), args.Error(1)
}

func (m *mockMappingRepo) FindByEbayListingID(ctx context.Context, listingID string) (model.ProductMap, error) {
	args := m.Called(ctx, listingID)
	return args.Get(0).(model.ProductMap), args.Error(1)
}

func (m *mockMappingRepo) Save(ctx context.Context, pm model.ProductMap) error {
	args := m.Called(ctx, pm)
	return args.Error(0)
}

func (m *mockMappingRepo) ListAll(ctx context.Context) ([]model.ProductMap, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.ProductMap), args.Error(1)
}

type mockEventRepo struct{ mock.Mock }

func (m *mockEventRepo) FindByID(ctx context.Context, eventID string) (model.ProcessedEvent, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(model.ProcessedEvent), args.Error(1)
}

func (m *mockEventRepo) CreateIfAbsent(ctx context.Context, ev model.ProcessedEvent) (bool, error) {
	args := m.Called(ctx, ev)
	return args.Bool(0), args.Error(1)
}

func (m *mockEventRepo) MarkApplied(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *mockEventRepo) MarkPropagated(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type mockSquareClient struct{ mock.Mock }

func (m *mockSquareClient) SetStockExact(ctx context.Context, variationID string, quantity int64) error {
	args := m.Called(ctx, variationID, quantity)
	return args.Error(0)
}

func (m *mockSquareClient) OrderQuantities(ctx context.Context, orderID string) (map[string]int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *mockSquareClient) UpsertItem(ctx context.Context, in channel.SquareListingInput) (channel.SquareListingResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(channel.SquareListingResult), args.Error(1)
}

type mockEbayClient struct{ mock.Mock }

func (m *mockEbayClient) BulkSetQuantity(ctx context.Context, updates []channel.StockUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

func (m *mockEbayClient) UpsertListing(ctx context.Context, in channel.EbayListingInput) (channel.EbayListingResult, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(channel.EbayListingResult), args.Error(1)
}

// Txの開始/commitを素通しするスタブ
type stubTxRepos struct {
	stocks   repo.StockRepository
	mappings repo.MappingRepository
	events   repo.ProcessedEventRepository
}

func (s stubTxRepos) Stocks() repo.StockRepository          { return s.stocks }
func (s stubTxRepos) Mappings() repo.MappingRepository      { return s.mappings }
func (s stubTxRepos) Events() repo.ProcessedEventRepository { return s.events }

type stubTxManager struct{ repos stubTxRepos }

func (s stubTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(s.repos)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// ---- fixture ----

type syncFixture struct {
	stocks   *mockStockRepo
	mappings *mockMappingRepo
	events   *mockEventRepo
	square   *mockSquareClient
	ebay     *mockEbayClient
	now      time.Time
	uc       *usecase.SyncUsecase
}

func newSyncFixture() *syncFixture {
	f := &syncFixture{
		stocks:   new(mockStockRepo),
		mappings: new(mockMappingRepo),
		events:   new(mockEventRepo),
		square:   new(mockSquareClient),
		ebay:     new(mockEbayClient),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.uc = usecase.NewSyncUsecase(
		stubTxManager{repos: stubTxRepos{stocks: f.stocks, mappings: f.mappings, events: f.events}},
		f.stocks,
		f.mappings,
		f.events,
		f.square,
		f.ebay,
		fixedClock{t: f.now},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		5*time.Minute,
		time.Second,
	)
	return f
}

func (f *syncFixture) expectNewEvent(eventID string) {
	f.events.On("FindByID", mock.Anything, eventID).Return(model.ProcessedEvent{}, repo.ErrNotFound)
	f.events.On("CreateIfAbsent", mock.Anything, mock.Anything).Return(true, nil)
}

func ptr(n int64) *int64 { return &n }

var testMapping = model.ProductMap{
	SKU:               "SKU-1",
	SquareVariationID: "VAR-1",
	EbayOfferID:       "OFFER-1",
	EbayListingID:     "1100001",
}

// ---- tests ----

func TestApplyChange_SaleDecrementsAndPropagates(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("sq-ev-1:VAR-1")
	f.mappings.On("FindBySquareVariationID", mock.Anything, "VAR-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10}, nil)
	f.stocks.On("Save", mock.Anything, mock.MatchedBy(func(rec model.StockRecord) bool {
		return rec.OnHand == 7 && rec.LastSource == model.ChannelSquare && rec.LastSourceAt != nil
	})).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "sq-ev-1:VAR-1").Return(nil)
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.MatchedBy(func(ups []channel.StockUpdate) bool {
		return len(ups) == 1 && ups[0].OfferID == "OFFER-1" && ups[0].Quantity == 7
	})).Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "sq-ev-1:VAR-1").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:           model.ChannelSquare,
		EventID:           "sq-ev-1:VAR-1",
		ExternalItemID:    "VAR-1",
		Kind:              notification.KindSale,
		QuantityPurchased: ptr(3),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionApplied, res.Action)
	assert.Equal(t, int64(10), res.Before)
	assert.Equal(t, int64(7), res.After)
	f.stocks.AssertExpectations(t)
	f.events.AssertExpectations(t)
	f.ebay.AssertExpectations(t)
}

func TestApplyChange_SaleClampsToZero(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("sq-ev-2:VAR-1")
	f.mappings.On("FindBySquareVariationID", mock.Anything, "VAR-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 3}, nil)
	f.stocks.On("Save", mock.Anything, mock.MatchedBy(func(rec model.StockRecord) bool {
		return rec.OnHand == 0
	})).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "sq-ev-2:VAR-1").Return(nil)
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.MatchedBy(func(ups []channel.StockUpdate) bool {
		return len(ups) == 1 && ups[0].Quantity == 0
	})).Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "sq-ev-2:VAR-1").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:           model.ChannelSquare,
		EventID:           "sq-ev-2:VAR-1",
		ExternalItemID:    "VAR-1",
		Kind:              notification.KindSale,
		QuantityPurchased: ptr(5),
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), res.After)
}

func TestApplyChange_RevisionSubtractsSold(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("ebay-ev-1")
	f.mappings.On("FindBySKU", mock.Anything, "SKU-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 9}, nil)
	f.stocks.On("Save", mock.Anything, mock.MatchedBy(func(rec model.StockRecord) bool {
		return rec.OnHand == 6 && rec.LastSource == model.ChannelEbay
	})).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "ebay-ev-1").Return(nil)
	f.square.On("SetStockExact", mock.Anything, "VAR-1", int64(6)).Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "ebay-ev-1").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:      model.ChannelEbay,
		EventID:      "ebay-ev-1",
		SKU:          "SKU-1",
		Kind:         notification.KindRevision,
		Quantity:     ptr(10),
		QuantitySold: ptr(4),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionApplied, res.Action)
	assert.Equal(t, int64(6), res.After)
	f.square.AssertExpectations(t)
}

func TestApplyChange_DuplicateEventIsNoop(t *testing.T) {
	f := newSyncFixture()

	f.events.On("FindByID", mock.Anything, "ebay-ev-1").
		Return(model.ProcessedEvent{EventID: "ebay-ev-1", Applied: true, Propagated: true}, nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:  model.ChannelEbay,
		EventID:  "ebay-ev-1",
		SKU:      "SKU-1",
		Kind:     notification.KindRevision,
		Quantity: ptr(10),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionDuplicate, res.Action)
	f.stocks.AssertNotCalled(t, "GetOrCreateForUpdate", mock.Anything, mock.Anything)
	f.stocks.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.square.AssertNotCalled(t, "SetStockExact", mock.Anything, mock.Anything, mock.Anything)
	f.ebay.AssertNotCalled(t, "BulkSetQuantity", mock.Anything, mock.Anything)
}

func TestApplyChange_RedeliveryWithPendingPropagationResyncs(t *testing.T) {
	f := newSyncFixture()

	// 前回applied=trueまで進んだが伝搬に失敗している
	f.events.On("FindByID", mock.Anything, "ebay-ev-1").
		Return(model.ProcessedEvent{EventID: "ebay-ev-1", Applied: true, Propagated: false}, nil)

	f.mappings.On("ListAll", mock.Anything).Return([]model.ProductMap{testMapping}, nil)
	f.stocks.On("FindBySKU", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 7}, nil)
	f.square.On("SetStockExact", mock.Anything, "VAR-1", int64(7)).Return(nil)
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.MatchedBy(func(ups []channel.StockUpdate) bool {
		return len(ups) == 1 && ups[0].Quantity == 7
	})).Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "ebay-ev-1").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:  model.ChannelEbay,
		EventID:  "ebay-ev-1",
		SKU:      "SKU-1",
		Kind:     notification.KindRevision,
		Quantity: ptr(7),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionDuplicate, res.Action)
	f.square.AssertExpectations(t)
	f.ebay.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestApplyChange_EchoIsSuppressed(t *testing.T) {
	f := newSyncFixture()

	lastAt := f.now.Add(-1 * time.Minute)
	f.expectNewEvent("ebay-echo-1")
	f.mappings.On("FindBySKU", mock.Anything, "SKU-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10, LastSource: model.ChannelSquare, LastSourceAt: &lastAt}, nil)
	f.events.On("MarkApplied", mock.Anything, "ebay-echo-1").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:  model.ChannelEbay,
		EventID:  "ebay-echo-1",
		SKU:      "SKU-1",
		Kind:     notification.KindRevision,
		Quantity: ptr(10),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionSuppressedEcho, res.Action)
	f.stocks.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.square.AssertNotCalled(t, "SetStockExact", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyChange_DifferentQuantityInWindowIsNotEcho(t *testing.T) {
	f := newSyncFixture()

	// 窓の内側でも値が違えば本物の変更として適用する
	lastAt := f.now.Add(-1 * time.Minute)
	f.expectNewEvent("ebay-echo-2")
	f.mappings.On("FindBySKU", mock.Anything, "SKU-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10, LastSource: model.ChannelSquare, LastSourceAt: &lastAt}, nil)
	f.stocks.On("Save", mock.Anything, mock.MatchedBy(func(rec model.StockRecord) bool {
		return rec.OnHand == 7 && rec.LastSource == model.ChannelEbay
	})).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "ebay-echo-2").Return(nil)
	f.square.On("SetStockExact", mock.Anything, "VAR-1", int64(7)).Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "ebay-echo-2").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:  model.ChannelEbay,
		EventID:  "ebay-echo-2",
		SKU:      "SKU-1",
		Kind:     notification.KindRevision,
		Quantity: ptr(7),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionApplied, res.Action)
	f.stocks.AssertExpectations(t)
}

func TestApplyChange_SameValueOutsideWindowIsNoChange(t *testing.T) {
	f := newSyncFixture()

	// 窓の外なのでエコー扱いにはならないが、値が同じなので伝搬もしない
	lastAt := f.now.Add(-10 * time.Minute)
	f.expectNewEvent("ebay-ev-3")
	f.mappings.On("FindBySKU", mock.Anything, "SKU-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10, LastSource: model.ChannelSquare, LastSourceAt: &lastAt}, nil)
	f.stocks.On("Save", mock.Anything, mock.MatchedBy(func(rec model.StockRecord) bool {
		return rec.OnHand == 10 && rec.LastSource == model.ChannelEbay
	})).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "ebay-ev-3").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:  model.ChannelEbay,
		EventID:  "ebay-ev-3",
		SKU:      "SKU-1",
		Kind:     notification.KindRevision,
		Quantity: ptr(10),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionNoChange, res.Action)
	f.square.AssertNotCalled(t, "SetStockExact", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyChange_UnmappedProductIsTerminal(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("ebay-ev-4")
	f.mappings.On("FindBySKU", mock.Anything, "GHOST").Return(model.ProductMap{}, repo.ErrNotFound)
	f.mappings.On("FindByEbayListingID", mock.Anything, "999").Return(model.ProductMap{}, repo.ErrNotFound)
	f.events.On("MarkApplied", mock.Anything, "ebay-ev-4").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:        model.ChannelEbay,
		EventID:        "ebay-ev-4",
		SKU:            "GHOST",
		ExternalItemID: "999",
		Kind:           notification.KindRevision,
		Quantity:       ptr(5),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionNoMapping, res.Action)
	// 台帳には残す（再配送が同じ結論を繰り返すだけにする）
	f.events.AssertCalled(t, "MarkApplied", mock.Anything, "ebay-ev-4")
	f.stocks.AssertNotCalled(t, "GetOrCreateForUpdate", mock.Anything, mock.Anything)
}

func TestApplyChange_MissingQuantityIsTerminal(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("ebay-ev-5")
	f.mappings.On("FindBySKU", mock.Anything, "SKU-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10}, nil)
	f.events.On("MarkApplied", mock.Anything, "ebay-ev-5").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel: model.ChannelEbay,
		EventID: "ebay-ev-5",
		SKU:     "SKU-1",
		Kind:    notification.KindRevision,
		// Quantityなし：0とは区別して終端にする
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionMissingQuantity, res.Action)
	f.stocks.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestApplyChange_IgnoredKindIsTerminal(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("ebay-ev-6")
	f.mappings.On("FindBySKU", mock.Anything, "SKU-1").Return(testMapping, nil)
	f.events.On("MarkApplied", mock.Anything, "ebay-ev-6").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel: model.ChannelEbay,
		EventID: "ebay-ev-6",
		SKU:     "SKU-1",
		Kind:    notification.KindIgnored,
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionIgnoredEvent, res.Action)
	f.stocks.AssertNotCalled(t, "GetOrCreateForUpdate", mock.Anything, mock.Anything)
}

func TestApplyChange_PropagationFailureKeepsLocalValue(t *testing.T) {
	f := newSyncFixture()

	f.expectNewEvent("sq-ev-7:VAR-1")
	f.mappings.On("FindBySquareVariationID", mock.Anything, "VAR-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10}, nil)
	f.stocks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "sq-ev-7:VAR-1").Return(nil)
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.Anything).Return(errors.New("503"))

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:           model.ChannelSquare,
		EventID:           "sq-ev-7:VAR-1",
		ExternalItemID:    "VAR-1",
		Kind:              notification.KindSale,
		QuantityPurchased: ptr(2),
	})

	// ローカル適用は成功のまま。propagated=falseが残り、再同期で回復する
	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionApplied, res.Action)
	assert.Equal(t, int64(8), res.After)
	f.events.AssertNotCalled(t, "MarkPropagated", mock.Anything, mock.Anything)
}

func TestApplyChange_NoOppositeTargetMarksPropagated(t *testing.T) {
	f := newSyncFixture()

	// eBay側のofferが未登録なら、伝搬相手がいないので完了扱い
	squareOnly := model.ProductMap{SKU: "SKU-2", SquareVariationID: "VAR-2"}
	f.expectNewEvent("sq-ev-8:VAR-2")
	f.mappings.On("FindBySquareVariationID", mock.Anything, "VAR-2").Return(squareOnly, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-2").
		Return(model.StockRecord{SKU: "SKU-2", OnHand: 4}, nil)
	f.stocks.On("Save", mock.Anything, mock.Anything).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "sq-ev-8:VAR-2").Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "sq-ev-8:VAR-2").Return(nil)

	res, err := f.uc.ApplyChange(context.Background(), notification.ChangeEvent{
		Channel:           model.ChannelSquare,
		EventID:           "sq-ev-8:VAR-2",
		ExternalItemID:    "VAR-2",
		Kind:              notification.KindSale,
		QuantityPurchased: ptr(1),
	})

	assert.NoError(t, err)
	assert.Equal(t, usecase.ActionApplied, res.Action)
	f.ebay.AssertNotCalled(t, "BulkSetQuantity", mock.Anything, mock.Anything)
	f.events.AssertCalled(t, "MarkPropagated", mock.Anything, "sq-ev-8:VAR-2")
}

func TestResyncAll_PushesCurrentValues(t *testing.T) {
	f := newSyncFixture()

	ebayOnly := model.ProductMap{SKU: "SKU-3", EbayOfferID: "OFFER-3"}
	f.mappings.On("ListAll", mock.Anything).Return([]model.ProductMap{testMapping, ebayOnly}, nil)
	f.stocks.On("FindBySKU", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 5}, nil)
	// 在庫レコード未作成のSKUは0として押す
	f.stocks.On("FindBySKU", mock.Anything, "SKU-3").
		Return(model.StockRecord{}, repo.ErrNotFound)
	f.square.On("SetStockExact", mock.Anything, "VAR-1", int64(5)).Return(nil)
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.MatchedBy(func(ups []channel.StockUpdate) bool {
		return len(ups) == 2 &&
			ups[0].SKU == "SKU-1" && ups[0].Quantity == 5 &&
			ups[1].SKU == "SKU-3" && ups[1].Quantity == 0
	})).Return(nil)

	err := f.uc.ResyncAll(context.Background())

	assert.NoError(t, err)
	f.square.AssertExpectations(t)
	f.ebay.AssertExpectations(t)
}

func TestResyncAll_ReportsFirstFailure(t *testing.T) {
	f := newSyncFixture()

	f.mappings.On("ListAll", mock.Anything).Return([]model.ProductMap{testMapping}, nil)
	f.stocks.On("FindBySKU", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 5}, nil)
	f.square.On("SetStockExact", mock.Anything, "VAR-1", int64(5)).Return(errors.New("timeout"))
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.Anything).Return(nil)

	err := f.uc.ResyncAll(context.Background())

	var perr *usecase.PropagationError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, model.ChannelSquare, perr.Target)
	// 片側が失敗しても、もう片側へは押し切る
	f.ebay.AssertExpectations(t)
}

func TestHandleSquareNotification_CompletedPaymentBecomesSale(t *testing.T) {
	f := newSyncFixture()

	f.square.On("OrderQuantities", mock.Anything, "ORDER-1").
		Return(map[string]int64{"VAR-1": 2}, nil)

	f.expectNewEvent("sq-pay-1:VAR-1")
	f.mappings.On("FindBySquareVariationID", mock.Anything, "VAR-1").Return(testMapping, nil)
	f.stocks.On("GetOrCreateForUpdate", mock.Anything, "SKU-1").
		Return(model.StockRecord{SKU: "SKU-1", OnHand: 10}, nil)
	f.stocks.On("Save", mock.Anything, mock.MatchedBy(func(rec model.StockRecord) bool {
		return rec.OnHand == 8
	})).Return(nil)
	f.events.On("MarkApplied", mock.Anything, "sq-pay-1:VAR-1").Return(nil)
	f.ebay.On("BulkSetQuantity", mock.Anything, mock.Anything).Return(nil)
	f.events.On("MarkPropagated", mock.Anything, "sq-pay-1:VAR-1").Return(nil)

	f.uc.HandleSquareNotification(context.Background(), notification.SquareEnvelope{
		EventID:       "sq-pay-1",
		EventType:     "payment.updated",
		OrderID:       "ORDER-1",
		PaymentStatus: "COMPLETED",
	})

	f.stocks.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestHandleEbayNotification_UnparseableIsDropped(t *testing.T) {
	f := newSyncFixture()

	// 台帳に触れず捨てる（修正後の再配送を適用できるように）
	f.uc.HandleEbayNotification(context.Background(), []byte("not xml at all"))

	f.events.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "CreateIfAbsent", mock.Anything, mock.Anything)
}
