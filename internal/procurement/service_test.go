package procurement

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harbor-wms/harbor-wms/internal/shared"
)

type memoryProcurementRepo struct {
	quotations map[int64]Quotation
	qtnItems   map[int64][]QuotationItem
	orders     map[int64]PurchaseOrder
	poItems    map[int64]POItem
	receivings map[int64]Receiving
	rcvItems   map[int64][]ReceivingItem
	stock      map[int64]int64
	counters   map[string]int64
	nextID     int64
}

type memoryProcurementTx struct {
	repo *memoryProcurementRepo
}

func newMemoryProcurementRepo() *memoryProcurementRepo {
	return &memoryProcurementRepo{
		quotations: make(map[int64]Quotation),
		qtnItems:   make(map[int64][]QuotationItem),
		orders:     make(map[int64]PurchaseOrder),
		poItems:    make(map[int64]POItem),
		receivings: make(map[int64]Receiving),
		rcvItems:   make(map[int64][]ReceivingItem),
		stock:      make(map[int64]int64),
		counters:   make(map[string]int64),
	}
}

func (r *memoryProcurementRepo) snapshot() *memoryProcurementRepo {
	clone := newMemoryProcurementRepo()
	for k, v := range r.quotations {
		clone.quotations[k] = v
	}
	for k, v := range r.qtnItems {
		clone.qtnItems[k] = append([]QuotationItem(nil), v...)
	}
	for k, v := range r.orders {
		clone.orders[k] = v
	}
	for k, v := range r.poItems {
		clone.poItems[k] = v
	}
	for k, v := range r.receivings {
		clone.receivings[k] = v
	}
	for k, v := range r.rcvItems {
		clone.rcvItems[k] = append([]ReceivingItem(nil), v...)
	}
	for k, v := range r.stock {
		clone.stock[k] = v
	}
	for k, v := range r.counters {
		clone.counters[k] = v
	}
	clone.nextID = r.nextID
	return clone
}

func (r *memoryProcurementRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	saved := r.snapshot()
	if err := fn(ctx, &memoryProcurementTx{repo: r}); err != nil {
		*r = *saved
		return err
	}
	return nil
}

func (r *memoryProcurementRepo) GetQuotation(ctx context.Context, id int64) (Quotation, []QuotationItem, error) {
	q, ok := r.quotations[id]
	if !ok {
		return Quotation{}, nil, ErrNotFound
	}
	return q, append([]QuotationItem(nil), r.qtnItems[id]...), nil
}

func (r *memoryProcurementRepo) ListQuotations(ctx context.Context, limit, offset int, f QuotationFilters) ([]Quotation, int, error) {
	var out []Quotation
	for _, q := range r.quotations {
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		out = append(out, q)
	}
	return out, len(out), nil
}

func (r *memoryProcurementRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POItem, error) {
	po, ok := r.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, r.itemsFor(id), nil
}

func (r *memoryProcurementRepo) itemsFor(poID int64) []POItem {
	var items []POItem
	for _, item := range r.poItems {
		if item.POID == poID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (r *memoryProcurementRepo) ListPOs(ctx context.Context, limit, offset int, f POFilters) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range r.orders {
		if f.Status != "" && po.Status != f.Status {
			continue
		}
		out = append(out, po)
	}
	return out, len(out), nil
}

func (r *memoryProcurementRepo) GetReceiving(ctx context.Context, id int64) (Receiving, []ReceivingItem, error) {
	rec, ok := r.receivings[id]
	if !ok {
		return Receiving{}, nil, ErrNotFound
	}
	return rec, append([]ReceivingItem(nil), r.rcvItems[id]...), nil
}

func (r *memoryProcurementRepo) ListReceivings(ctx context.Context, poID int64) ([]Receiving, error) {
	var out []Receiving
	for _, rec := range r.receivings {
		if rec.POID == poID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryProcurementRepo) MarkExpiredQuotations(ctx context.Context, asOf time.Time) (int64, error) {
	var n int64
	for id, q := range r.quotations {
		switch q.Status {
		case QuotationDraft, QuotationSent, QuotationReceived:
			if !q.ValidUntil.IsZero() && q.ValidUntil.Before(asOf) {
				q.Status = QuotationExpired
				r.quotations[id] = q
				n++
			}
		}
	}
	return n, nil
}

func (tx *memoryProcurementTx) next(prefix string) string {
	tx.repo.counters[prefix]++
	return fmt.Sprintf("%s-%d-%04d", prefix, time.Now().Year(), tx.repo.counters[prefix])
}

func (tx *memoryProcurementTx) NextQuotationNumber(ctx context.Context) (string, error) {
	return tx.next("QTN"), nil
}

func (tx *memoryProcurementTx) NextPONumber(ctx context.Context) (string, error) {
	return tx.next("PO"), nil
}

func (tx *memoryProcurementTx) NextReceivingNumber(ctx context.Context) (string, error) {
	return tx.next("RCV"), nil
}

func (tx *memoryProcurementTx) InsertQuotation(ctx context.Context, q Quotation) (int64, error) {
	tx.repo.nextID++
	q.ID = tx.repo.nextID
	tx.repo.quotations[q.ID] = q
	return q.ID, nil
}

func (tx *memoryProcurementTx) UpdateQuotationInfo(ctx context.Context, q Quotation) error {
	stored, ok := tx.repo.quotations[q.ID]
	if !ok {
		return ErrNotFound
	}
	stored.VendorID = q.VendorID
	stored.CurrencyID = q.CurrencyID
	stored.ValidUntil = q.ValidUntil
	stored.QuotationDate = q.QuotationDate
	stored.Note = q.Note
	tx.repo.quotations[q.ID] = stored
	return nil
}

func (tx *memoryProcurementTx) DeleteQuotationItems(ctx context.Context, quotationID int64) error {
	delete(tx.repo.qtnItems, quotationID)
	return nil
}

func (tx *memoryProcurementTx) InsertQuotationItem(ctx context.Context, item QuotationItem) error {
	items := tx.repo.qtnItems[item.QuotationID]
	item.ID = int64(len(items) + 1)
	tx.repo.qtnItems[item.QuotationID] = append(items, item)
	return nil
}

func (tx *memoryProcurementTx) UpdateQuotationStatus(ctx context.Context, id int64, status QuotationStatus) error {
	q, ok := tx.repo.quotations[id]
	if !ok {
		return ErrNotFound
	}
	q.Status = status
	tx.repo.quotations[id] = q
	return nil
}

func (tx *memoryProcurementTx) DeleteQuotation(ctx context.Context, id int64) error {
	delete(tx.repo.qtnItems, id)
	delete(tx.repo.quotations, id)
	return nil
}

func (tx *memoryProcurementTx) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	tx.repo.orders[po.ID] = po
	return po.ID, nil
}

func (tx *memoryProcurementTx) UpdatePOInfo(ctx context.Context, po PurchaseOrder) error {
	stored, ok := tx.repo.orders[po.ID]
	if !ok {
		return ErrNotFound
	}
	stored.VendorID = po.VendorID
	stored.SupplierName = po.SupplierName
	stored.CurrencyID = po.CurrencyID
	stored.ExpectedDelivery = po.ExpectedDelivery
	stored.Note = po.Note
	tx.repo.orders[po.ID] = stored
	return nil
}

func (tx *memoryProcurementTx) DeletePOItems(ctx context.Context, poID int64) error {
	for id, item := range tx.repo.poItems {
		if item.POID == poID {
			delete(tx.repo.poItems, id)
		}
	}
	return nil
}

func (tx *memoryProcurementTx) InsertPOItem(ctx context.Context, item POItem) error {
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.repo.poItems[item.ID] = item
	return nil
}

func (tx *memoryProcurementTx) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	po, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	tx.repo.orders[id] = po
	return nil
}

func (tx *memoryProcurementTx) SetPOApproval(ctx context.Context, id, approvedBy int64, at time.Time) error {
	po, ok := tx.repo.orders[id]
	if !ok {
		return ErrNotFound
	}
	po.ApprovedBy = approvedBy
	po.ApprovedAt = at
	tx.repo.orders[id] = po
	return nil
}

func (tx *memoryProcurementTx) DeletePO(ctx context.Context, id int64) error {
	_ = tx.DeletePOItems(ctx, id)
	delete(tx.repo.orders, id)
	return nil
}

func (tx *memoryProcurementTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := tx.repo.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (tx *memoryProcurementTx) GetPOItemsForUpdate(ctx context.Context, poID int64) ([]POItem, error) {
	return tx.repo.itemsFor(poID), nil
}

func (tx *memoryProcurementTx) InsertReceiving(ctx context.Context, r Receiving) (int64, error) {
	tx.repo.nextID++
	r.ID = tx.repo.nextID
	tx.repo.receivings[r.ID] = r
	return r.ID, nil
}

func (tx *memoryProcurementTx) InsertReceivingItem(ctx context.Context, item ReceivingItem) error {
	tx.repo.rcvItems[item.ReceivingID] = append(tx.repo.rcvItems[item.ReceivingID], item)
	return nil
}

func (tx *memoryProcurementTx) AddItemReceived(ctx context.Context, poItemID, qty int64) error {
	item, ok := tx.repo.poItems[poItemID]
	if !ok {
		return ErrNotFound
	}
	item.QtyReceived += qty
	tx.repo.poItems[poItemID] = item
	return nil
}

func (tx *memoryProcurementTx) GetProductStockForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	qty, ok := tx.repo.stock[productID]
	if !ok {
		return ProductStock{}, ErrNotFound
	}
	return ProductStock{ID: productID, Quantity: qty}, nil
}

func (tx *memoryProcurementTx) UpdateProductQuantity(ctx context.Context, productID, quantity int64) error {
	tx.repo.stock[productID] = quantity
	return nil
}

func seedReceivedQuotation(t *testing.T, svc *Service, repo *memoryProcurementRepo) Quotation {
	t.Helper()
	ctx := context.Background()
	q, err := svc.CreateQuotation(ctx, 1, QuotationInput{
		VendorID:   5,
		CurrencyID: 2,
		ValidUntil: time.Now().Add(30 * 24 * time.Hour),
		Items: []QuotationItemInput{
			{ProductID: 100, Qty: 10, UnitPrice: 4.5, LeadTimeDays: 7},
			{ProductID: 101, Qty: 3, UnitPrice: 12},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.ChangeQuotationStatus(ctx, 1, q.ID, QuotationSent))
	require.NoError(t, svc.ChangeQuotationStatus(ctx, 1, q.ID, QuotationReceived))
	stored, _, err := svc.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	return stored
}

func orderedPO(t *testing.T, svc *Service, repo *memoryProcurementRepo) (PurchaseOrder, []POItem) {
	t.Helper()
	ctx := context.Background()
	q := seedReceivedQuotation(t, svc, repo)
	po, err := svc.ConvertToPO(ctx, 1, q.ID)
	require.NoError(t, err)
	for _, to := range []POStatus{POSubmitted, POApproved, POOrdered} {
		require.NoError(t, svc.ChangePOStatus(ctx, 2, po.ID, to))
	}
	stored, items, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	repo.stock[100] = 0
	repo.stock[101] = 0
	return stored, items
}

func TestConvertToPOCopiesItems(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	q := seedReceivedQuotation(t, svc, repo)
	po, err := svc.ConvertToPO(ctx, 1, q.ID)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("PO-%d-0001", time.Now().Year()), po.Number)
	require.Equal(t, PODraft, po.Status)
	require.Equal(t, q.VendorID, po.VendorID)
	require.Equal(t, q.CurrencyID, po.CurrencyID)

	_, items, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.Zero(t, item.QtyReceived)
	}
	require.Equal(t, int64(13), items[0].QtyOrdered+items[1].QtyOrdered)

	accepted, _, err := svc.GetQuotation(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationAccepted, accepted.Status)
}

func TestConvertToPORequiresReceivedStatus(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	q, err := svc.CreateQuotation(ctx, 1, QuotationInput{VendorID: 5, Items: []QuotationItemInput{{ProductID: 100, Qty: 1, UnitPrice: 2}}})
	require.NoError(t, err)

	_, err = svc.ConvertToPO(ctx, 1, q.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestChangeQuotationStatusBlocksDirectAccept(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	q := seedReceivedQuotation(t, svc, repo)
	err := svc.ChangeQuotationStatus(ctx, 1, q.ID, QuotationAccepted)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestDeleteQuotationOnlyDraft(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	q, err := svc.CreateQuotation(ctx, 1, QuotationInput{VendorID: 5, Items: []QuotationItemInput{{ProductID: 100, Qty: 1, UnitPrice: 2}}})
	require.NoError(t, err)
	require.NoError(t, svc.ChangeQuotationStatus(ctx, 1, q.ID, QuotationSent))

	require.ErrorIs(t, svc.DeleteQuotation(ctx, 1, q.ID), shared.ErrInvalidState)
}

func TestChangePOStatusStampsApprover(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	po, err := svc.CreatePO(ctx, 1, POInput{VendorID: 5, Items: []POItemInput{{ProductID: 100, Qty: 4, UnitPrice: 3}}})
	require.NoError(t, err)
	require.NoError(t, svc.ChangePOStatus(ctx, 2, po.ID, POSubmitted))
	require.NoError(t, svc.ChangePOStatus(ctx, 9, po.ID, POApproved))

	stored, _, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, int64(9), stored.ApprovedBy)
	require.False(t, stored.ApprovedAt.IsZero())

	require.ErrorIs(t, svc.ChangePOStatus(ctx, 2, po.ID, POSubmitted), shared.ErrInvalidState)
}

func TestCancelOnlyBeforeOrdered(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	po, err := svc.CreatePO(ctx, 1, POInput{VendorID: 5, Items: []POItemInput{{ProductID: 100, Qty: 4, UnitPrice: 3}}})
	require.NoError(t, err)
	for _, to := range []POStatus{POSubmitted, POApproved, POOrdered} {
		require.NoError(t, svc.ChangePOStatus(ctx, 2, po.ID, to))
	}
	require.ErrorIs(t, svc.ChangePOStatus(ctx, 2, po.ID, POCancelled), shared.ErrInvalidState)
}

func TestReceivePartialThenFull(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	po, items := orderedPO(t, svc, repo)
	first := items[0]
	second := items[1]

	rec, err := svc.Receive(ctx, 3, po.ID, ReceiveInput{Items: []ReceiveItemInput{{POItemID: first.ID, Qty: 4}}})
	require.NoError(t, err)
	require.Equal(t, ReceivingPartial, rec.Status)
	require.Equal(t, int64(4), repo.stock[first.ProductID])

	stored, _, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POPartiallyReceived, stored.Status)

	rec, err = svc.Receive(ctx, 3, po.ID, ReceiveInput{Items: []ReceiveItemInput{
		{POItemID: first.ID, Qty: first.QtyOrdered - 4},
		{POItemID: second.ID, Qty: second.QtyOrdered},
	}})
	require.NoError(t, err)
	require.Equal(t, ReceivingCompleted, rec.Status)

	stored, storedItems, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POReceived, stored.Status)
	for _, item := range storedItems {
		require.Zero(t, item.Remaining())
	}
	require.Equal(t, first.QtyOrdered, repo.stock[first.ProductID])
	require.Equal(t, second.QtyOrdered, repo.stock[second.ProductID])
}

func TestReceiveRejectsOverReceipt(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	po, items := orderedPO(t, svc, repo)
	first := items[0]

	_, err := svc.Receive(ctx, 3, po.ID, ReceiveInput{Items: []ReceiveItemInput{{POItemID: first.ID, Qty: first.QtyOrdered + 1}}})
	require.ErrorIs(t, err, shared.ErrOverReceipt)

	// Nothing moved.
	require.Zero(t, repo.stock[first.ProductID])
	stored, _, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POOrdered, stored.Status)
}

func TestReceiveRequiresOrderedPO(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	po, err := svc.CreatePO(ctx, 1, POInput{VendorID: 5, Items: []POItemInput{{ProductID: 100, Qty: 4, UnitPrice: 3}}})
	require.NoError(t, err)
	_, items, err := svc.GetPO(ctx, po.ID)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, 3, po.ID, ReceiveInput{Items: []ReceiveItemInput{{POItemID: items[0].ID, Qty: 1}}})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestExpireQuotationsSweepsStaleOnes(t *testing.T) {
	repo := newMemoryProcurementRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	stale, err := svc.CreateQuotation(ctx, 1, QuotationInput{
		VendorID:   5,
		ValidUntil: time.Now().Add(-24 * time.Hour),
		Items:      []QuotationItemInput{{ProductID: 100, Qty: 1, UnitPrice: 2}},
	})
	require.NoError(t, err)
	fresh, err := svc.CreateQuotation(ctx, 1, QuotationInput{
		VendorID:   5,
		ValidUntil: time.Now().Add(24 * time.Hour),
		Items:      []QuotationItemInput{{ProductID: 100, Qty: 1, UnitPrice: 2}},
	})
	require.NoError(t, err)

	n, err := svc.ExpireQuotations(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	expired, _, err := svc.GetQuotation(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationExpired, expired.Status)
	kept, _, err := svc.GetQuotation(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, QuotationDraft, kept.Status)
}
