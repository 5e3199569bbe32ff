package engine

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetGridConfig(gridID uint64) (*GridConfig, error) {
	var grid GridConfig
	if err := d.db.Where("grid_id = ?", gridID).First(&grid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grid, nil
}

func (d *Database) GetOrder(orderID uint64) (*GridOrder, error) {
	var order GridOrder
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetGridOrders returns every materialized order slot of a grid keyed by
// packed order id. Slots missing from the map were never written and carry
// their lazily derived amounts.
func (d *Database) GetGridOrders(gridID uint64) (map[uint64]*GridOrder, error) {
	var orders []GridOrder
	if err := d.db.Where("grid_id = ?", gridID).Find(&orders).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]*GridOrder, len(orders))
	for i := range orders {
		byID[orders[i].OrderID] = &orders[i]
	}
	return byID, nil
}

// ReserveIDs allocates the next grid id plus askCount and bidCount
// consecutive indices from the per-side global counters. Counters only ever
// move forward; ids reserved for a placement that later fails are simply
// skipped.
func (d *Database) ReserveIDs(askCount, bidCount uint32) (gridID, startAsk, startBid uint64, err error) {
	tx := d.db.Begin()
	if err = tx.Error; err != nil {
		return 0, 0, 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var counter GridCounter
	if err = tx.FirstOrCreate(&counter, GridCounter{}).Error; err != nil {
		tx.Rollback()
		return 0, 0, 0, err
	}
	if counter.NextGridID == 0 {
		counter.NextGridID = 1
	}

	gridID = counter.NextGridID
	startAsk = counter.NextAskIndex
	startBid = counter.NextBidIndex

	counter.NextGridID++
	counter.NextAskIndex += uint64(askCount)
	counter.NextBidIndex += uint64(bidCount)

	if err = tx.Save(&counter).Error; err != nil {
		tx.Rollback()
		return 0, 0, 0, err
	}
	return gridID, startAsk, startBid, tx.Commit().Error
}

func (d *Database) CreateGrid(grid *GridConfig) error {
	return d.db.Create(grid).Error
}

// CreateGridWithIdempotency persists a new grid together with the
// idempotency record that maps the placement key to it.
func (d *Database) CreateGridWithIdempotency(grid *GridConfig, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(grid).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		GridID:         grid.GridID,
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key, or nil if the
// key has not been seen.
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (d *Database) SaveGrid(grid *GridConfig) error {
	return d.db.Save(grid).Error
}

// SaveFills persists the mutated order slots and grid configs of one fill
// operation in a single transaction, so a failed operation leaves no partial
// state behind.
func (d *Database) SaveFills(orders []*GridOrder, grids []*GridConfig) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, order := range orders {
		if err := tx.Save(order).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, grid := range grids {
		if err := tx.Save(grid).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

// SaveCancel persists a cancellation sweep: the grid config and every swept
// order slot, atomically.
func (d *Database) SaveCancel(grid *GridConfig, orders []*GridOrder) error {
	return d.SaveFills(orders, []*GridConfig{grid})
}
