package usecase

import (
	"context"
	"log/slog"
	"time"

	"app/internal/channel"
	"app/internal/domain/model"
	"app/internal/notification"
	repo "app/internal/repository"
)

type Clock interface {
	Now() time.Time
}

// イベント適用の結末
type SyncAction string

const (
	ActionApplied         SyncAction = "applied"          // 在庫を更新し、反対側へ伝搬
	ActionDuplicate       SyncAction = "duplicate"        // 既に適用済み（再配送）
	ActionNoMapping       SyncAction = "no_mapping"       // 対応表なし。終端
	ActionMissingQuantity SyncAction = "missing_quantity" // 数量欠落。終端
	ActionIgnoredEvent    SyncAction = "ignored_event"    // 在庫に関係しない種別。終端
	ActionSuppressedEcho  SyncAction = "suppressed_echo"  // 自分の書き込みの反響
	ActionNoChange        SyncAction = "no_change"        // 値が同じ。伝搬しない
)

type SyncResult struct {
	Action  SyncAction
	EventID string
	SKU     string
	Before  int64
	After   int64

	mapping model.ProductMap
}

// SyncUsecase が StockRecord.on_hand を変更する唯一の主体。
type SyncUsecase struct {
	tx       repo.TransactionManager
	stocks   repo.StockRepository
	mappings repo.MappingRepository
	events   repo.ProcessedEventRepository

	square channel.SquareClient
	ebay   channel.EbayClient

	clock  Clock
	logger *slog.Logger

	echoWindow  time.Duration
	propTimeout time.Duration
}

func NewSyncUsecase(
	tx repo.TransactionManager,
	stocks repo.StockRepository,
	mappings repo.MappingRepository,
	events repo.ProcessedEventRepository,
	square channel.SquareClient,
	ebay channel.EbayClient,
	clock Clock,
	logger *slog.Logger,
	echoWindow time.Duration,
	propTimeout time.Duration,
) *SyncUsecase {
	return &SyncUsecase{
		tx:          tx,
		stocks:      stocks,
		mappings:    mappings,
		events:      events,
		square:      square,
		ebay:        ebay,
		clock:       clock,
		logger:      logger,
		echoWindow:  echoWindow,
		propTimeout: propTimeout,
	}
}

// ApplyChange は正規化済みイベントを高々1回だけ在庫に適用する。
// 手順（§の読み書きは1トランザクション＝SKU行ロックの内側で完結する）:
//  1. event_idで台帳を引く。適用済みなら何もしない（伝搬未完なら再同期）
//  2. 対応表を引く。なければ終端
//  3. 新数量を計算（0未満は0へクランプ）
//  4. エコー抑止
//  5. 値が同じならlast_sourceだけ更新
//  6. 在庫更新＋applied=true、コミット後に反対チャネルへ伝搬
func (u *SyncUsecase) ApplyChange(ctx context.Context, ev notification.ChangeEvent) (SyncResult, error) {
	res := SyncResult{EventID: ev.EventID}
	needResync := false

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		existing, err := r.Events().FindByID(ctx, ev.EventID)
		if err != nil && err != repo.ErrNotFound {
			return err
		}
		if err == nil && existing.Applied {
			res.Action = ActionDuplicate
			// 前回の適用は済んでいるが伝搬が未完 → 後で全件再同期する
			needResync = !existing.Propagated
			return nil
		}
		if err == repo.ErrNotFound {
			created, err := r.Events().CreateIfAbsent(ctx, model.ProcessedEvent{
				EventID:   ev.EventID,
				Channel:   ev.Channel,
				EventType: ev.EventType,
			})
			if err != nil {
				return err
			}
			if !created {
				// 同じevent_idの並行配送が先にコミットした。適用済みならやり直さない
				again, err := r.Events().FindByID(ctx, ev.EventID)
				if err != nil {
					return err
				}
				if again.Applied {
					res.Action = ActionDuplicate
					needResync = !again.Propagated
					return nil
				}
			}
		}

		pm, err := u.resolveMapping(ctx, r, ev)
		if err == repo.ErrNotFound {
			res.Action = ActionNoMapping
			return r.Events().MarkApplied(ctx, ev.EventID)
		}
		if err != nil {
			return err
		}
		res.SKU = pm.SKU
		res.mapping = pm

		if ev.Kind == notification.KindIgnored {
			res.Action = ActionIgnoredEvent
			return r.Events().MarkApplied(ctx, ev.EventID)
		}

		rec, err := r.Stocks().GetOrCreateForUpdate(ctx, pm.SKU)
		if err != nil {
			return err
		}
		res.Before = rec.OnHand

		candidate, ok := candidateQuantity(ev, rec.OnHand)
		if !ok {
			res.Action = ActionMissingQuantity
			return r.Events().MarkApplied(ctx, ev.EventID)
		}
		res.After = candidate

		now := u.clock.Now()
		if isEcho(rec, ev.Channel, candidate, now, u.echoWindow) {
			res.Action = ActionSuppressedEcho
			return r.Events().MarkApplied(ctx, ev.EventID)
		}

		if candidate == rec.OnHand {
			// 値は変わらないが、このチャネルが現在値を確認したことは残す
			rec.LastSource = ev.Channel
			rec.LastSourceAt = &now
			if err := r.Stocks().Save(ctx, rec); err != nil {
				return err
			}
			res.Action = ActionNoChange
			return r.Events().MarkApplied(ctx, ev.EventID)
		}

		rec.OnHand = candidate
		rec.LastSource = ev.Channel
		rec.LastSourceAt = &now
		if err := r.Stocks().Save(ctx, rec); err != nil {
			return err
		}
		res.Action = ActionApplied
		return r.Events().MarkApplied(ctx, ev.EventID)
	})
	if err != nil {
		return SyncResult{}, err
	}

	u.logResult(ev, res)

	switch {
	case needResync:
		if err := u.ResyncAll(ctx); err != nil {
			u.logger.Error("resync after redelivery failed",
				"event_id", ev.EventID, "error", err)
			return res, nil
		}
		if err := u.events.MarkPropagated(ctx, ev.EventID); err != nil {
			u.logger.Error("mark propagated failed", "event_id", ev.EventID, "error", err)
		}
	case res.Action == ActionApplied:
		u.propagate(ctx, ev, res)
	}

	return res, nil
}

// SKU優先、なければチャネル固有の外部IDで対応表を引く
func (u *SyncUsecase) resolveMapping(ctx context.Context, r repo.TxRepos, ev notification.ChangeEvent) (model.ProductMap, error) {
	if ev.SKU != "" {
		pm, err := r.Mappings().FindBySKU(ctx, ev.SKU)
		if err == nil {
			return pm, nil
		}
		if err != repo.ErrNotFound {
			return model.ProductMap{}, err
		}
	}

	if ev.ExternalItemID == "" {
		return model.ProductMap{}, repo.ErrNotFound
	}
	switch ev.Channel {
	case model.ChannelSquare:
		return r.Mappings().FindBySquareVariationID(ctx, ev.ExternalItemID)
	case model.ChannelEbay:
		return r.Mappings().FindByEbayListingID(ctx, ev.ExternalItemID)
	default:
		return model.ProductMap{}, repo.ErrNotFound
	}
}

func candidateQuantity(ev notification.ChangeEvent, current int64) (int64, bool) {
	switch ev.Kind {
	case notification.KindRevision:
		// チャネル側のgross/sold分解をそのまま信じる
		if ev.Quantity == nil {
			return 0, false
		}
		var sold int64
		if ev.QuantitySold != nil {
			sold = *ev.QuantitySold
		}
		return clampNonNegative(*ev.Quantity - sold), true
	case notification.KindSale:
		if ev.QuantityPurchased == nil {
			return 0, false
		}
		return clampNonNegative(current - *ev.QuantityPurchased), true
	default:
		return 0, false
	}
}

func clampNonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// コミット済みの新数量を反対チャネルへ押し出す。
// 失敗してもローカルは正のまま。propagated=falseが残り、後の再同期で回復する。
func (u *SyncUsecase) propagate(ctx context.Context, ev notification.ChangeEvent, res SyncResult) {
	target := ev.Channel.Other()

	pctx, cancel := context.WithTimeout(ctx, u.propTimeout)
	defer cancel()

	var err error
	switch target {
	case model.ChannelEbay:
		if !res.mapping.HasEbayTarget() {
			// 書き込み先がない＝このイベントに伝搬すべき相手はいない
			u.markPropagated(ctx, ev.EventID)
			return
		}
		err = u.ebay.BulkSetQuantity(pctx, []channel.StockUpdate{{
			SKU:      res.SKU,
			OfferID:  res.mapping.EbayOfferID,
			Quantity: res.After,
		}})
	case model.ChannelSquare:
		if !res.mapping.HasSquareTarget() {
			u.markPropagated(ctx, ev.EventID)
			return
		}
		err = u.square.SetStockExact(pctx, res.mapping.SquareVariationID, res.After)
	default:
		return
	}

	if err != nil {
		perr := &PropagationError{Target: target, SKU: res.SKU, Err: err}
		u.logger.Error("propagation failed",
			"event_id", ev.EventID, "sku", res.SKU, "target", string(target), "error", perr)
		return
	}

	u.markPropagated(ctx, ev.EventID)
	u.logger.Info("propagated",
		"event_id", ev.EventID, "sku", res.SKU, "target", string(target), "quantity", res.After)
}

func (u *SyncUsecase) markPropagated(ctx context.Context, eventID string) {
	if err := u.events.MarkPropagated(ctx, eventID); err != nil {
		u.logger.Error("mark propagated failed", "event_id", eventID, "error", err)
	}
}

// ResyncAll は対応表を持つ全SKUの現在値を両チャネルへ押し直す。
// 在庫は再計算しない（読み出しのみ）。運用からも直接叩ける。
func (u *SyncUsecase) ResyncAll(ctx context.Context) error {
	mappings, err := u.mappings.ListAll(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	var ebayUpdates []channel.StockUpdate

	for _, pm := range mappings {
		var qty int64
		rec, err := u.stocks.FindBySKU(ctx, pm.SKU)
		if err == nil {
			qty = rec.OnHand
		} else if err != repo.ErrNotFound {
			return err
		}

		if pm.HasEbayTarget() {
			ebayUpdates = append(ebayUpdates, channel.StockUpdate{
				SKU:      pm.SKU,
				OfferID:  pm.EbayOfferID,
				Quantity: qty,
			})
		}

		if pm.HasSquareTarget() {
			pctx, cancel := context.WithTimeout(ctx, u.propTimeout)
			err := u.square.SetStockExact(pctx, pm.SquareVariationID, qty)
			cancel()
			if err != nil {
				u.logger.Error("resync to square failed", "sku", pm.SKU, "error", err)
				if firstErr == nil {
					firstErr = &PropagationError{Target: model.ChannelSquare, SKU: pm.SKU, Err: err}
				}
			}
		}
	}

	if len(ebayUpdates) > 0 {
		pctx, cancel := context.WithTimeout(ctx, u.propTimeout)
		err := u.ebay.BulkSetQuantity(pctx, ebayUpdates)
		cancel()
		if err != nil {
			u.logger.Error("resync to ebay failed", "count", len(ebayUpdates), "error", err)
			if firstErr == nil {
				firstErr = &PropagationError{Target: model.ChannelEbay, Err: err}
			}
		}
	}

	return firstErr
}

// HandleSquareNotification は検証済みのSquare通知を処理する。
// payment完了は注文APIから購入数を引いてSALEに、在庫カウントはREVISIONに落とす。
func (u *SyncUsecase) HandleSquareNotification(ctx context.Context, env notification.SquareEnvelope) {
	if env.IsCompletedPayment() {
		sold, err := u.square.OrderQuantities(ctx, env.OrderID)
		if err != nil {
			u.logger.Error("square order retrieve failed",
				"event_id", env.EventID, "order_id", env.OrderID, "error", err)
			return
		}
		u.applyAll(ctx, env.SaleEvents(sold))
		return
	}

	u.applyAll(ctx, env.ChangeEvents())
}

// HandleEbayNotification は生のeBay通知を正規化して適用する。
// 解析失敗は捨てるだけ（台帳に残さないので、修正後の再配送は適用できる）。
func (u *SyncUsecase) HandleEbayNotification(ctx context.Context, raw []byte) {
	ev, err := notification.ParseEbayNotification(raw)
	if err != nil {
		u.logger.Error("dropping unparseable ebay notification", "error", err)
		return
	}
	u.applyAll(ctx, []notification.ChangeEvent{ev})
}

func (u *SyncUsecase) applyAll(ctx context.Context, evs []notification.ChangeEvent) {
	for _, ev := range evs {
		if _, err := u.ApplyChange(ctx, ev); err != nil {
			u.logger.Error("apply change failed",
				"event_id", ev.EventID, "sku", ev.SKU, "error", err)
		}
	}
}

func (u *SyncUsecase) logResult(ev notification.ChangeEvent, res SyncResult) {
	switch res.Action {
	case ActionNoMapping:
		u.logger.Warn("event terminal", "event_id", ev.EventID, "sku", ev.SKU,
			"external_item_id", ev.ExternalItemID, "reason", ErrUnmappedProduct.Error())
	case ActionMissingQuantity:
		u.logger.Warn("event terminal", "event_id", ev.EventID, "sku", res.SKU,
			"reason", ErrMissingQuantity.Error())
	default:
		u.logger.Info("event processed", "event_id", ev.EventID, "sku", res.SKU,
			"action", string(res.Action), "before", res.Before, "after", res.After)
	}
}
